// wikidex turns Wikidata JSON dumps into an embedded, searchable
// chunk index. See cmd/wikidex/cmd for the individual commands.
package main

import (
	"os"

	"github.com/exowanderer/WikidataTextEmbedding/cmd/wikidex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
