// Package mcp implements the Model Context Protocol (MCP) server for docrag.
//
// The server exposes three tools to MCP clients:
//   - ingest_document: store one or more files for retrieval
//   - delete_document: remove a document and its chunks
//   - retrieve_context: fetch the passages most similar to a query
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	docrag mcp
//
// # Tool: ingest_document
//
//	Request:
//	{
//	  "name": "ingest_document",
//	  "arguments": {"paths": ["/docs/syllabus.pdf", "/docs/notes.md"]}
//	}
//
//	Response:
//	{
//	  "succeeded": 1,
//	  "failed": 1,
//	  "documents": [
//	    {"path": "/docs/syllabus.pdf", "document_id": "5f0c...", "chunks_created": 12},
//	    {"path": "/docs/notes.md", "error": "file read failed: ..."}
//	  ]
//	}
//
// # Tool: delete_document
//
//	Request:  {"name": "delete_document", "arguments": {"id": "5f0c..."}}
//	Response: {"deleted": true, "id": "5f0c...", "original_name": "syllabus.pdf", "chunks_deleted": 12}
//
// # Tool: retrieve_context
//
//	Request:  {"name": "retrieve_context", "arguments": {"query": "When is the midterm?"}}
//	Response: {"context": "The following excerpts ...", "references": [...]}
//
// "context" is empty and "references" is [] when nothing clears the
// similarity threshold.
//
// # Errors
//
// Invalid arguments return code -32602, an unknown document -32001, an empty
// query -32004 and any other failure -32603.
package mcp
