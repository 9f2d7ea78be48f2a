// Package web serves the HTML search page.
package web

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/search"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"github.com/rubiojr/cmsmirror/pkg/version"
	"github.com/rubiojr/cmsmirror/pkg/widget"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/search.html
var searchTemplate string

type ResultView struct {
	ID     string
	Name   string
	Fields []widget.Bound
}

// BindingView is the form of a widget binding the page script reads to render
// live results the same way the server does.
type BindingView struct {
	Field string `json:"field"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

type PageData struct {
	// Bindings is the JSON encoded []BindingView.
	Bindings    string
	Query       string
	Collection  string
	Collections []core.Collection
	Results     []ResultView
	Total       int
	Searched    bool
	// Failed hides results after an error. Error details only go to the log.
	Failed  bool
	Version string
}

// Page renders search results server side and ships a small script that
// queries /api/search as the user types.
type Page struct {
	tmpl     *template.Template
	service  *search.SearchService
	store    storage.Store
	bindings []widget.Binding
	manifest string
	logger   *log.Logger
}

func NewPage(service *search.SearchService, store storage.Store, bindings []widget.Binding) (*Page, error) {
	if len(bindings) == 0 {
		bindings = widget.DefaultBindings
	}
	tmpl, err := template.New("search").Funcs(funcMap()).Parse(searchTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing search template: %w", err)
	}
	manifest, err := bindingManifest(bindings)
	if err != nil {
		return nil, err
	}
	return &Page{
		tmpl:     tmpl,
		service:  service,
		store:    store,
		bindings: bindings,
		manifest: manifest,
		logger:   log.ForService("web"),
	}, nil
}

func bindingManifest(bindings []widget.Binding) (string, error) {
	views := make([]BindingView, len(bindings))
	for i, b := range bindings {
		views[i] = BindingView{Field: b.Field, Kind: b.Kind.String(), Label: b.Label}
	}
	data, err := json.Marshal(views)
	if err != nil {
		return "", fmt.Errorf("encoding widget bindings: %w", err)
	}
	return string(data), nil
}

func funcMap() template.FuncMap {
	title := cases.Title(language.Und)
	return template.FuncMap{
		"title": func(s string) string { return title.String(s) },
		"label": func(b widget.Bound) string {
			if b.Label != "" {
				return b.Label
			}
			return b.Value
		},
	}
}

func (p *Page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := PageData{
		Query:      r.URL.Query().Get("q"),
		Collection: strings.TrimSpace(r.URL.Query().Get("collections")),
		Results:    []ResultView{},
		Bindings:   p.manifest,
		Version:    version.Version,
	}

	collections, err := p.store.Collections(ctx)
	if err != nil {
		p.logger.Errorf("Loading collections for search page: %v", err)
	}
	data.Collections = collections

	if strings.TrimSpace(data.Query) != "" {
		data.Searched = true
		params := search.SearchParams{Query: data.Query, Collections: data.Collection}
		if params.Collections == "" {
			params.Collections = core.AllCollections
		}
		results, err := p.service.Search(ctx, params)
		var nf *core.NotFoundError
		switch {
		case errors.As(err, &nf):
		case err != nil:
			p.logger.Errorf("Search page query %q failed: %v", data.Query, err)
			data.Failed = true
		default:
			data.Total = results.Total
			for _, res := range results.Results {
				data.Results = append(data.Results, ResultView{
					ID:     res.ID,
					Name:   res.Name,
					Fields: widget.Bind(res, p.bindings),
				})
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := p.tmpl.Execute(w, data); err != nil {
		p.logger.Errorf("Rendering search page: %v", err)
	}
}
