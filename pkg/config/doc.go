// Package config loads and merges the transfer engine's run configuration:
// a source endpoint, a target endpoint, and the options governing batch
// size, transform selection, and dry-run/preview behavior.
//
// A configuration document looks like:
//
//	version: 1
//	source:
//	  uri: postgresql://reporting/sales#orders
//	  options:
//	    batch_size: "5000"
//	target:
//	  uri: s3://warehouse-bucket/orders.csv
//	options:
//	  batch_size: 5000
//	  transform:
//	    type: inline
//	    value: "status=upper(row.status)"
//
// ${VAR} references anywhere in the document are interpolated from the
// process environment before YAML parsing; an unset variable is a
// configuration error, not a blank substitution.
package config
