// Package model defines the data types shared across the crawler,
// storage, and report packages.
//
// The types here are intentionally free of behavior beyond small
// constructors and invariant helpers. Keeping them in a leaf package
// avoids import cycles between the crawl orchestrator and the
// persistence layer.
package model
