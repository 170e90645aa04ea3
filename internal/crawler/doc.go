// Package crawler orchestrates a breadth-first, depth-limited crawl of
// a web graph, delegating page rendering to an injected browser-control
// collaborator.
//
// # Architecture
//
//   - Frontier: deduplicated FIFO work queue of pending visits with
//     depth and lineage bookkeeping
//   - SessionPool: bounded set of rotating network identities (cookie
//     jar + proxy binding), retired after a usage cap
//   - Pipeline: ordered fixed-then-user-extensible hook chain around
//     the page load (cookie injection, resource blocking, security
//     toggles, timeouts)
//   - PageHandler: the per-visit state machine that assembles the
//     extraction context, invokes the user routine, and runs
//     post-processing
//   - LinkDiscovery: declarative and interactive extraction of
//     candidate links, filtered by pseudo-URL patterns and fed back
//     into the frontier
//   - ResultSink / FailureHandler: append-only output accounting and
//     the result-cap abort signal
//   - Crawler: the worker pool tying the above together
//
// # Concurrency
//
// A fixed-size worker pool pulls visits in frontier arrival order;
// completion order is unordered and the BFS shape is carried by depth
// metadata, not scheduling. Frontier and SessionPool are the only
// internally synchronized structures. CrawlState is safe to access
// per-operation but deliberately provides no cross-visit atomicity.
//
// An abort (result cap reached, fatal error, signal) is observed at
// the top of each dispatch: in-flight visits run to completion and no
// new visits are dequeued.
package crawler
