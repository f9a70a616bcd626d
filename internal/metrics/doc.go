// Package metrics records publish-run metrics.
//
// Components receive a Recorder and default to NoopRecorder, so metric calls
// never need nil checks. When a metrics file is configured the command wires
// a PrometheusRecorder and writes the registry out in the node exporter
// textfile format after every run.
package metrics
