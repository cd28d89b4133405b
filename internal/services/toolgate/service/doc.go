// Package service hosts the toolgate MCP server over stdio or HTTP.
package service
