package resource_test

import (
	"context"
	"fmt"
	"log"

	"github.com/AmmannChristian/go-resx/httpclient"
	"github.com/AmmannChristian/go-resx/resource"
)

type Order struct {
	ID    string  `json:"id"`
	Total float64 `json:"total"`
}

// Example shows the fallback envelope of a call that cannot be sent.
func Example() {
	pipeline, err := httpclient.NewBuilder().
		WithBaseURL("https://api.example.com").
		RequireCredential().
		Build()
	if err != nil {
		log.Fatal(err)
	}

	orders := resource.New[Order](pipeline, "orders")

	env := orders.List(context.Background())
	fmt.Printf("failed=%v error=%q items=%d\n", env.Failed(), env.Error, len(env.Data))
	// Output: failed=true error="Failed to fetch entities" items=0
}

// ExampleEnvelope_Unwrap demonstrates converting an envelope back into Go's
// value, error form.
func ExampleEnvelope_Unwrap() {
	env := resource.Envelope[*Order]{Data: &Order{ID: "1", Total: 9.5}}

	order, err := env.Unwrap()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(order.ID, order.Total)
	// Output: 1 9.5
}
