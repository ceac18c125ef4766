// Package main hosts the Loft CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into API
// calls against the asset service, local ingest pipeline runs, asset and
// usage maintenance, and configuration scaffolding. It centralizes
// configuration resolution and client construction so subcommands can
// focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags
// here.
package main
