package integration_tests

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rubiojr/cmsmirror/cmd"
	"github.com/rubiojr/cmsmirror/pkg/cms/cmstest"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/urfave/cli/v3"
)

var (
	Products = core.Collection{ID: "col-products", Slug: "products", DisplayName: "Products", SingularName: "Product"}
	Posts    = core.Collection{ID: "col-posts", Slug: "blog-posts", DisplayName: "Blog Posts", SingularName: "Blog Post"}
)

// NewFakeCMS starts a fake CMS with a small product catalog and a blog.
func NewFakeCMS() *cmstest.Server {
	srv := cmstest.NewServer("site-1")
	srv.AddCollection(Products,
		`{"name":"Red Shoes","slug":"red-shoes","color":"red","price":49}`,
		`{"name":"Blue Hat","slug":"blue-hat","image":{"url":"https://cdn.example.com/hat.png","alt":"A hat"}}`,
	)
	srv.AddCollection(Posts, `{"name":"Why red is back","slug":"red-is-back","summary":"Seasonal colors"}`)
	return srv
}

// WriteConfig writes a config that stores under dir and syncs from srv.
// extra is appended verbatim.
func WriteConfig(dir string, srv *cmstest.Server, extra string) (string, error) {
	content := fmt.Sprintf(`
storage_dir = '%s'

[cms]
base_url = '%s'
site_id = '%s'
api_token = '%s'
page_size = 1
%s
`, dir, srv.URL, srv.SiteID, cmstest.Token, extra)

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// RunCLI runs the cmsmirror command line against configPath.
func RunCLI(ctx context.Context, configPath string, args ...string) error {
	root := &cli.Command{
		Name: "cmsmirror",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: configPath,
			},
		},
		Commands: []*cli.Command{
			cmd.SyncCommand(),
			cmd.SearchCommand(),
			cmd.CollectionsCommand(),
			cmd.StatsCommand(),
			cmd.MaintainCommand(),
			cmd.MigrateCommand(),
		},
	}
	return root.Run(ctx, append([]string{"cmsmirror", "--config", configPath}, args...))
}
