// Package pagination walks continuation-paginated wiki API queries.
//
// A generator query returns one batch per request together with a
// continuation cursor. The driver feeds each batch to a consumer callback
// and issues the next request with the cursor the wiki returned, until a
// response carries no cursor:
//
//	driver := pagination.Driver{Requester: wikiClient}
//	err := driver.Traverse(ctx, http.MethodGet, "query", "allpages", "",
//		url.Values{"gaplimit": {"50"}},
//		func(ctx context.Context, resp *client.Response, next *string) error {
//			pages, _ := resp.Pages()
//			// handle pages; next is nil on the final batch
//			return nil
//		})
//
// The driver:
//   - Is strictly sequential; the next request is built only after the
//     consumer returned for the current batch
//   - Buffers nothing across iterations
//   - Reads the cursor from continue.gapcontinue, falling back to the legacy
//     query-continue.allpages.gapfrom
//   - Stops on the first consumer or request error
//
// Throttling and retries happen below the driver, in the Requester.
package pagination
