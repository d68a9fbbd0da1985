// Package tmdb provides a rate-limited client for The Movie Database (TMDB) API.
//
// Every request goes through the same pipeline:
//
//  1. take a slot from the client's Gate (bounded requests in flight)
//  2. wait out any active Backoff window, then send the request
//  3. on 429 Too Many Requests open a backoff window from Retry-After and
//     try again without giving up the slot
//  4. on any other response, inspect X-RateLimit-Remaining and X-RateLimit-Reset
//     and back off early when the requests in flight would exhaust the quota
//  5. release the slot and decode the JSON body
//
// Only 429 responses are retried. Transport failures, other non-2xx statuses and
// malformed bodies are returned to the caller once.
//
// # Usage
//
//	client, err := tmdb.NewClient(
//		"https://api.themoviedb.org",
//		"3",
//		apiKey,
//		logger,
//		tmdb.WithConcurrency(8),
//		tmdb.WithRequestRate(40, 10),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	id, err := client.FindTVID(ctx, "Severance")
//	show, err := client.GetTV(ctx, id)
//
// # Error Handling
//
//   - ErrInvalidConfig: missing URL, version or key, or a concurrency below one
//   - ErrNotFound: a name search returned no results
//   - APIError: any non-2xx status other than 429, with IsNotFound/IsUnauthorized helpers
package tmdb
