package llm

import (
	"fmt"
	"strings"
)

// SchemaDescription is the static description of the relation given to the model
type SchemaDescription struct {
	Relation string
	Columns  []string
}

// DefaultSchema describes the merged agriculture dataset
var DefaultSchema = SchemaDescription{
	Relation: "samarth_dataset",
	Columns:  []string{"year", "year_rank"},
}

// BuildPrompt renders the single-turn instruction for one question
func BuildPrompt(schema SchemaDescription, question string) string {
	quoted := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		quoted[i] = "'" + c + "'"
	}

	var sb strings.Builder
	sb.WriteString("You are an intelligent data assistant for agriculture datasets.\n")
	sb.WriteString(fmt.Sprintf("The main DuckDB table is called '%s' with columns like %s.\n",
		schema.Relation, strings.Join(quoted, " and ")))
	sb.WriteString(fmt.Sprintf("User question: %s\n", question))
	sb.WriteString("\n")
	sb.WriteString("Generate ONE valid SQL query (DuckDB compatible) that answers the question. ")
	sb.WriteString("Only return the SQL query, no explanation.\n")
	return sb.String()
}
