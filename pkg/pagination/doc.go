// Package pagination fetches all rows of one date window from an
// offset-paginated source.
//
// Pages are requested strictly one after another. A window reaches Done when
// a page comes back shorter than the page size (or empty); it reaches Failed
// when a page request errors, in which case the rows of earlier pages are
// still returned alongside the error.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(source, pagination.DefaultConfig(), logger)
//	result := fetcher.FetchWindow(ctx, w)
//	if result.State == pagination.StateFailed {
//		// result.Rows holds the pages fetched before the failure
//	}
//
// Retrying a single failed page is the transport's job; the fetcher never
// re-requests a page.
package pagination
