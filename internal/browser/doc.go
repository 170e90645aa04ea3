// Package browser implements the page-rendering collaborator on top of
// chromedp. It is the only package that talks to the browser; the
// orchestrator in internal/crawler sees it exclusively through the
// PageEngine and Page interfaces.
//
// One headless Chrome process is launched per proxy binding, since a
// proxy is an allocator-level setting in Chrome. Pages are cheap
// browser tabs created and destroyed per visit; the process outlives
// them and is torn down with the engine.
package browser
