// package store implements types that store attachment payloads outside the
// relational database.
//
// Payloads may be stored either in-memory or on-disk. When stored on disk,
// they are stored encrypted and optionally compressed.
package store
