// Package parser provides lexing and parsing for apitest files.
//
// An apitest file is a sequence of test definitions written with a small
// set of case-insensitive keywords. Fields that take a list are followed by
// lines indented with two spaces:
//
//	test "Get user"
//	endpoint "{{baseUrl}}/users/1"
//	method GET
//	headers
//	  Authorization "Bearer {{token}}"
//	timeout 2000
//	expect
//	  status 200
//	  body contains "\"id\": 1"
//
// The lexer produces a flat token stream (plus optional spans for
// diagnostics) and the parser assembles it into a TestFile.
package parser
