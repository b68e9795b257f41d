// Package prompt loads the system and step prompts of the report workflow.
// Defaults are embedded in the binary; a directory with the same layout
// (<lang>/system.txt, <lang>/data_analysis.json) overrides them file by
// file. Prompts are text/template templates rendered against Data.
package prompt
