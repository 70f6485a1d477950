// Package domain defines the core live-chat types and the contracts between them.
//
// Files are concept-oriented (session.go, message.go, connection.go, bridge.go, errors.go).
// No implementation code beyond small value helpers. Interfaces live here so adapters
// and the app layer can depend on each other without import cycles.
package domain
