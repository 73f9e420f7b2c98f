/*
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package fhirclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// Paginate is a utility function to scan through all pages of a FHIR search result.
// It calls the consumeFunc for each page, which can return false to stop the pagination early (if for example enough data has been found).
// The function will stop if there are no more pages (no "next" link in the Bundle).
// It will return an error if any of the calls to consumeFunc or the FHIR server fail.
// By default, it will stop after 100 iterations to prevent endless loops due to bugs in the FHIR server or the code.
// WithMaxIterations(0) lifts that limit; a 'next' link pointing to an already visited page or to another server is always an error.
func Paginate(ctx context.Context, fhirClient Client, searchSet fhir.Bundle, consumeFunc func(*fhir.Bundle) (bool, error), opts ...PaginationOption) error {
	options := &paginationOptions{
		maxIterations: 100,
	}
	for _, opt := range opts {
		opt(options)
	}
	visited := map[string]bool{}
	for i := 0; options.maxIterations == 0 || i < options.maxIterations; i++ {
		// Make sure we don't loop endlessly due to a bug
		if options.maxIterations > 0 && i == options.maxIterations-1 {
			return fmt.Errorf("paginate: max. search iterations reached (%d), possible bug", options.maxIterations)
		}

		if proceed, err := consumeFunc(&searchSet); err != nil {
			return err
		} else if !proceed {
			// consume function called exit
			return nil
		}

		nextURL, err := nextLink(searchSet)
		if err != nil {
			return err
		}
		if nextURL == nil {
			break
		}
		base := fhirClient.Path()
		if !nextURL.IsAbs() {
			// relative to the FHIR base URL
			resolved := base.JoinPath(nextURL.Path)
			resolved.RawQuery = nextURL.RawQuery
			nextURL = resolved
		}
		if !sameOrigin(nextURL, base) {
			// the HTTP client may carry credentials for the FHIR server only
			return fmt.Errorf("paginate: 'next' link points to another server than %s (url=%s)", base.Host, nextURL)
		}
		if visited[nextURL.String()] {
			return fmt.Errorf("paginate: 'next' link points to an already visited page (url=%s)", nextURL)
		}
		visited[nextURL.String()] = true
		searchSet = fhir.Bundle{}
		if err := fhirClient.ReadWithContext(ctx, nextURL.String(), &searchSet); err != nil {
			return fmt.Errorf("paginate: query next page failed (url=%s): %w", nextURL, err)
		}
	}
	return nil
}

func nextLink(searchSet fhir.Bundle) (*url.URL, error) {
	for _, link := range searchSet.Link {
		if link.Relation == "next" {
			nextURL, err := url.Parse(link.Url)
			if err != nil {
				return nil, fmt.Errorf("paginate: invalid 'next' link for search set: %w", err)
			}
			return nextURL, nil
		}
	}
	return nil, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

type PaginationOption func(*paginationOptions)

type paginationOptions struct {
	maxIterations int
}

// WithMaxIterations sets the maximum number of iterations for the Paginate function.
// Zero means no maximum.
func WithMaxIterations(max int) PaginationOption {
	return func(o *paginationOptions) {
		o.maxIterations = max
	}
}

// SearchOption configures SearchAllWithContext.
type SearchOption func(*searchOptions)

type searchOptions struct {
	pageLimit int
	flat      bool
	includes  []string
}

// PageLimit sets the maximum number of pages fetched. Zero fetches all pages.
func PageLimit(pages int) SearchOption {
	return func(o *searchOptions) {
		o.pageLimit = pages
	}
}

// Flat makes SearchAllWithContext unmarshal the entry resources of all pages into the target, which must be a pointer to a slice.
func Flat() SearchOption {
	return func(o *searchOptions) {
		o.flat = true
	}
}

// Graph requests the server to return the referenced resources inline, using _include (e.g. "Observation:has-member").
func Graph(includes ...string) SearchOption {
	return func(o *searchOptions) {
		o.includes = append(o.includes, includes...)
	}
}

func (d BaseClient) SearchAllWithContext(ctx context.Context, resourceType string, query url.Values, target any, opts ...Option) error {
	options := searchOptions{pageLimit: 1}
	var requestOpts []Option
	for _, opt := range opts {
		if fn, ok := opt.(SearchOption); ok {
			fn(&options)
		} else {
			requestOpts = append(requestOpts, opt)
		}
	}
	params := url.Values{}
	for key, values := range query {
		params[key] = append([]string(nil), values...)
	}
	for _, include := range options.includes {
		params.Add("_include", include)
	}

	var searchSet fhir.Bundle
	if err := d.SearchWithContext(ctx, resourceType, params, &searchSet, requestOpts...); err != nil {
		return err
	}
	var pages []fhir.Bundle
	err := Paginate(ctx, d, searchSet, func(page *fhir.Bundle) (bool, error) {
		pages = append(pages, *page)
		return options.pageLimit == 0 || len(pages) < options.pageLimit, nil
	}, WithMaxIterations(0))
	if err != nil {
		return err
	}

	if !options.flat {
		bundles, ok := target.(*[]fhir.Bundle)
		if !ok {
			return fmt.Errorf("search without Flat() requires a *[]fhir.Bundle target, got %T", target)
		}
		*bundles = pages
		return nil
	}
	resources, err := flatten(pages)
	if err != nil {
		return err
	}
	data, err := json.Marshal(resources)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("FHIR search result unmarshal failed (%s): %w", resourceType, err)
	}
	return nil
}

// flatten collects the entry resources of all pages, skipping OperationOutcomes and resources seen on an earlier page.
func flatten(pages []fhir.Bundle) ([]json.RawMessage, error) {
	resources := make([]json.RawMessage, 0)
	seen := map[string]bool{}
	for _, page := range pages {
		for _, entry := range page.Entry {
			if len(entry.Resource) == 0 {
				continue
			}
			desc, err := DescribeResource(entry.Resource)
			if err != nil {
				return nil, fmt.Errorf("invalid search set entry: %w", err)
			}
			if desc.Type == "OperationOutcome" {
				continue
			}
			if ref := desc.Reference(); ref != "" {
				if seen[ref] {
					continue
				}
				seen[ref] = true
			}
			resources = append(resources, entry.Resource)
		}
	}
	return resources, nil
}
