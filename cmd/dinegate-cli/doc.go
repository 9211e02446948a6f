// Package main provides the entry point for dinegate-cli.
//
// dinegate-cli signs in to the food-ordering backend and keeps the client
// session: it stores the credential, attaches it to backend calls, warns
// before it expires and guards navigation between views.
//
// Usage:
//
//	dinegate-cli login -a alice
//	dinegate-cli navigate /customer/orders
//	dinegate-cli -o json call GET /orders
//	dinegate-cli call -d '{"dishId":3}' POST /orders
//	dinegate-cli watch --metrics-addr 127.0.0.1:9464
//	dinegate-cli shell
package main
