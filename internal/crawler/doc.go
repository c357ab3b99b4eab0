// Package crawler holds the domain types, collaborator interfaces and error
// taxonomy shared by the orchestrator, the platform adapters and the API.
package crawler
