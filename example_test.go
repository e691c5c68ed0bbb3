package tabquery_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/nao1215/tabquery"
)

// ExamplePipeline_Query ingests a CSV file into a persistent pipeline and
// queries it through the "data" placeholder.
func ExamplePipeline_Query() {
	dir, err := os.MkdirTemp("", "tabquery-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	pipeline, err := tabquery.NewBuilder().
		WithDatabasePath(filepath.Join(dir, "tabquery.db")).
		Open(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pipeline.Close()

	ingested, err := pipeline.Ingest(ctx, tabquery.IngestRequest{
		Filename: "people.csv",
		Data:     []byte("Name,Age\nAnn,30\nBob,25\n"),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %d rows\n", ingested.Dataset.Name, ingested.Dataset.RowCount)

	result, err := pipeline.Query(ctx, tabquery.QueryRequest{
		DatasetID: ingested.Dataset.ID,
		SQL:       "SELECT Name FROM data WHERE Age > 26",
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range result.Rows {
		fmt.Println(row["Name"])
	}

	_, err = pipeline.Query(ctx, tabquery.QueryRequest{
		DatasetID: ingested.Dataset.ID,
		SQL:       "SELECT * FROM data; DROP TABLE data",
	})
	fmt.Println(err)
	// Output:
	// people: 2 rows
	// Ann
	// query rejected: operation not allowed: DROP
}

// ExampleSession_Execute runs a one-off query against an in-memory copy of
// the file.
func ExampleSession_Execute() {
	ctx := context.Background()
	session, err := tabquery.NewBuilder().WithEngine("sqlite").Session(ctx)
	if err != nil {
		log.Fatal(err)
	}

	result, err := session.Execute(ctx, tabquery.SessionRequest{
		Data: []byte("city;population\nOslo;709000\nLima;9750000\n"),
		SQL:  "SELECT city FROM data ORDER BY population DESC",
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range result.Rows {
		fmt.Println(row["city"])
	}
	// Output:
	// Lima
	// Oslo
}
