package parser

type TestFile struct {
	Path  string
	Tests []*ASTNode
}

type NodeKind int

const (
	NodeTestDefinition NodeKind = iota
)

type ASTNode struct {
	Kind       NodeKind
	Name       string
	Definition *TestDefinition
	Line       int
}

type TestDefinition struct {
	Endpoint string
	Method   HTTPMethod
	Headers  []HeaderNode
	Body     *string
	Query    *string
	Expect   []ExpectNode
	// Timeout is in milliseconds.
	Timeout *uint16
}

func NewTestDefinition() *TestDefinition {
	return &TestDefinition{
		Method: MethodNone,
	}
}

type HeaderNode struct {
	Key   string
	Value string
}

type ExpectKind int

const (
	ExpectStatus ExpectKind = iota
	ExpectBody
)

type ExpectNode struct {
	Kind   ExpectKind
	Status uint16
	Body   BodyExpectation
}

type BodyMatch int

const (
	BodyEquals BodyMatch = iota
	BodyContains
)

func (m BodyMatch) String() string {
	if m == BodyContains {
		return "contains"
	}
	return "equals"
}

type BodyExpectation struct {
	Match BodyMatch
	Value string
}

func StatusExpectation(code uint16) ExpectNode {
	return ExpectNode{Kind: ExpectStatus, Status: code}
}

func BodyEqualsExpectation(value string) ExpectNode {
	return ExpectNode{Kind: ExpectBody, Body: BodyExpectation{Match: BodyEquals, Value: value}}
}

func BodyContainsExpectation(value string) ExpectNode {
	return ExpectNode{Kind: ExpectBody, Body: BodyExpectation{Match: BodyContains, Value: value}}
}
