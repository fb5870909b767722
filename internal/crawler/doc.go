// Package crawler holds the record and fetch types shared by providers,
// fetchers, and stores, plus the interfaces that connect them.
package crawler
