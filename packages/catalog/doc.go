// Package catalog loads environments, modules, variables and test cases from
// YAML files and seeds them into a store.
//
// A catalog is validated twice: structurally against an embedded JSON Schema,
// then semantically (assertion and extractor fields, duplicate names).
//
// Example:
//
//	environments:
//	  - name: staging
//	    base_url: https://staging.example.com
//	    headers:
//	      Accept: application/json
//	modules:
//	  - name: auth
//	    variables:
//	      - name: token
//	        value: ""
//	        extractor: {source: body, expression: $.token}
//	    cases:
//	      - name: login
//	        method: POST
//	        path: /login
//	        headers: {Content-Type: application/json}
//	        body: {user: demo, password: secret}
//	        assertions:
//	          - {type: status_code, expected: 200}
package catalog
