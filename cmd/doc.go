// Package cmd defines the sitewatch CLI.
//
// Architecture overview:
//   - Cycle: scheduler.Cycle launches one browser, captures every enabled site in an isolated session
//     (sequentially with a pause between sites, or through a bounded pool when monitor.concurrency > 1),
//     prunes old snapshots, aggregates and saves the report, then publishes, syncs the status page, and
//     notifies operators. Integration failures are logged and never fail the cycle.
//   - Scheduling: --once runs a single cycle and exits 0 when every site is up, 2 when any failed and 1 on
//     configuration or startup errors. Without --once a cycle runs immediately and then every
//     monitor.interval_hours; an interrupt lets the running cycle finish and starts no new one.
//   - Persistence: snapshots go to the artifact store (local/gcs/memory), reports to the report store
//     (local/postgres/sqlite/memory). /status serves the most recent report.
//   - Plumbing: Viper reads config files and SITEWATCH_* env vars (PORT overrides server.port); zap
//     provides structured logging; Prometheus metrics for cycles and HTTP requests are served on /metrics.
//
// Quick checklist:
//   - Run one cycle: sitewatch --config config.yaml --once
//   - Run continuously with the health server: sitewatch --config config.yaml
//   - Only serve reports: sitewatch serve --config config.yaml
//   - Smoke test a URL: sitewatch capture https://example.com --wait "#app"
package cmd
