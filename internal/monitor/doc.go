// Package monitor defines the data model and collaborator interfaces shared by
// the site monitoring pipeline: site configuration, capture results, cycle
// reports, the renderer capability, and the artifact/report stores.
//
// Everything in this package is either a plain value type or an interface.
// Concrete adapters live in sibling packages (renderer, storage, statuspage,
// notify) and orchestration lives in runner, retention, report and scheduler.
package monitor
