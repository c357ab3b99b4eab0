// Package main is the creatorcrawler executable.
//
// Run "creatorcrawler serve" for the HTTP API, or "creatorcrawler crawl
// --creators a,b" for a one-off job. Configuration comes from the file
// named by --config and from CRAWLER_* environment variables.
package main

import (
	"github.com/JakeFAU/creator-crawler/cmd"
)

func main() {
	cmd.Execute()
}
