// Package crawler declares the collaborator interfaces and shared result
// types of the catalog crawl: page fetching, browser rendering, product
// storage and per-page processing.
package crawler
