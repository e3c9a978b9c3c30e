// Package file loads the crawl configuration from a TOML file.
//
// Unset keys keep the values of domain.DefaultCrawlConfig. After the file
// is read, GITHUB_TOKENS (comma separated) and GITHUB_TOKEN_1..N append
// credentials and DEVTRAWL_STORAGE replaces storage.dsn.
package file
