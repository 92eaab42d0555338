// Command domin records robot demonstration datasets from batched
// simulation.
//
//	domin record            run the collection loop until the episode budget is met
//	domin dataset info      summarize a dataset on disk
//	domin preflight         check paths, binaries and the hub before recording
//	domin config init       write a sample configuration
//	domin config validate   load and validate the configuration
package main
