// Package connectors holds the clients for remote sources that a crawl
// reads from. Each subpackage implements driven.Source for one service.
package connectors
