// Package confhash canonicalizes arbitrary configuration trees and computes
// the content hashes used for change detection. The durable hash ignores
// ephemeral paths so that noise-only changes (status fields, timestamps) do
// not register as configuration changes.
package confhash
