// Package manager provides catalog, lifecycle, and generation coordination for
// local models. It is structured into small files by concern:
//
//   - manager.go: core Manager type, catalog queries (list, search, stats).
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - initialize.go: reconciling the registry store with the models directory.
//   - generate.go: Generate/Chat entry points, validation, partial-result policy.
//   - unload.go: warm load, unload, removal, idle eviction.
//   - status_report.go: Snapshot/Running/Status reporting helpers.
//   - events.go, eventpub_memory.go: lifecycle events and publishers.
//   - metrics.go: Prometheus collectors for loads and generations.
//
// Loading, per-model serialization and budget eviction live in the instance
// package; the sampling loop lives in engine. Weight formats are resolved per
// model family by the backend registry:
//
//   - In-process llama (standard):
//     Uses go-llama.cpp. Enabled with `-tags=llama`.
//     A no-CGO stub that refuses to load exists when the tag is not set.
//
// External packages should treat this package as the orchestration layer and use
// public methods only (e.g., NewWithConfig, Initialize, Generate, Chat, Status).
package manager
