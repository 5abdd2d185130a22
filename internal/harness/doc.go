// Package harness runs end-to-end sync scenarios against a fresh store.
//
// A scenario feeds captured marketplace pages and pushed records through the
// engine, then checks the run reports and the resulting local state.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: product_snapshot
//	description: "A full product listing deletes products that disappeared"
//	tenant: acme
//	plan:
//	  product: 100
//	steps:
//	  - sync:
//	      kind: product
//	      policy: skip
//	      page_size: 2
//	      pages:
//	        - page: 0
//	          total_pages: 1
//	          total_elements: 2
//	          content:
//	            - { id: "P1", barcode: "869001" }
//	            - { id: "P2", barcode: "869002" }
//	    expect:
//	      status: completed
//	      created: 2
//	  - push:
//	      kind: order
//	      record: { orderNumber: "9001", orderDate: 1772355600000 }
//	    expect:
//	      operation: created
//	assertions:
//	  - type: count
//	    kind: product
//	    count: 2
//	  - type: final_state
//	    table: products
//	    where: { external_id: "P1" }
//	    expect: { barcode: "869001" }
//
// Sync pages use the fixture page format of package market: omitting a
// paging field reproduces a malformed page and error reproduces a failed
// request.
//
// # Assertion Types
//
//   - count: number of root entities of a kind for the tenant
//   - keys: the exact sorted natural keys of a kind for the tenant
//   - shared_count: number of shared sub-entities (customer, address, brand, category)
//   - final_state: queries a table and verifies expected column values
//
// # Deterministic Testing
//
// Every scenario runs against its own in-memory SQLite database with a
// deterministic clock and sequential run ids, so identical scenarios produce
// identical reports. Golden snapshots leave out run ids and timestamps.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/product_snapshot.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(context.Background(), scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        fmt.Println(e)
//	    }
//	}
package harness
