// Package internaldefs holds the shared metric definitions consumed by
// the Prometheus and OpenTelemetry exporters. It is internal to the
// export packages and carries no stability guarantee.
package internaldefs
