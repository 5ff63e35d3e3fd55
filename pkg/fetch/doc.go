// Package fetch produces page payloads for navigations.
//
// A Fetcher resolves a navigation in this order:
//
//  1. the matched route's Handler, when it has one
//  2. the page cache, unless the navigation forces a refresh
//  3. an identical request already in flight, which is joined
//  4. a new partial-content request through the Transport
//
// Network responses are either a JSON payload or a full HTML document,
// from which the content container, title, meta tags and page assets are
// extracted. Only successful network responses are cached.
package fetch
