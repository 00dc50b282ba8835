package ingest

import (
	"regexp"
	"strings"
)

// NodeType is the controlled vocabulary of semantic node types
type NodeType string

const (
	TypeCase         NodeType = "Case"
	TypeActivity     NodeType = "Activity"
	TypeCustomer     NodeType = "Customer"
	TypeBranch       NodeType = "Branch"
	TypeProduct      NodeType = "Product"
	TypeAmount       NodeType = "Amount"
	TypeTime         NodeType = "Time"
	TypeAccount      NodeType = "Account"
	TypeLocation     NodeType = "Location"
	TypeOrganization NodeType = "Organization"
	TypeClaim        NodeType = "Claim"
	TypeVehicle      NodeType = "Vehicle"
	TypeDocument     NodeType = "Document"
	TypeConcept      NodeType = "Concept"
)

// Value-shape patterns, checked only after every header rule has missed
var (
	customerCodePattern = regexp.MustCompile(`^C\d+$`)
	branchCodePattern   = regexp.MustCompile(`^B\d+$`)
	accountCodePattern  = regexp.MustCompile(`^A\d+$`)
	isoDatePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	numericPattern      = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// headerRule maps header substrings to a node type. Rule order is part of
// the classification contract: first match wins.
type headerRule struct {
	keywords []string
	nodeType NodeType
}

var headerRules = []headerRule{
	{[]string{"case", "transaction", "journey"}, TypeCase},
	{[]string{"customer", "client", "holder"}, TypeCustomer},
	{[]string{"branch"}, TypeBranch},
	{[]string{"activity", "action", "event", "status", "step"}, TypeActivity},
	{[]string{"time", "date"}, TypeTime},
	{[]string{"amount", "balance", "price", "premium"}, TypeAmount},
	{[]string{"product", "policy"}, TypeProduct},
	{[]string{"account"}, TypeAccount},
	{[]string{"location", "city", "address", "state", "zip"}, TypeLocation},
	{[]string{"company", "organization", "org", "vendor"}, TypeOrganization},
	{[]string{"claim"}, TypeClaim},
	{[]string{"vehicle", "car"}, TypeVehicle},
}

// Classify maps a column header / sample value pair to a semantic node
// type. Pure function: header substrings are checked first in fixed order,
// then value shapes; anything unmatched falls back to Concept.
func Classify(columnHeader, sampleValue string) NodeType {
	header := strings.ToLower(strings.TrimSpace(columnHeader))

	for _, rule := range headerRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(header, keyword) {
				return rule.nodeType
			}
		}
	}

	value := strings.TrimSpace(sampleValue)
	switch {
	case customerCodePattern.MatchString(value):
		return TypeCustomer
	case branchCodePattern.MatchString(value):
		return TypeBranch
	case accountCodePattern.MatchString(value):
		return TypeAccount
	case isoDatePattern.MatchString(value):
		return TypeTime
	case numericPattern.MatchString(value):
		return TypeAmount
	}

	return TypeConcept
}

// RelationForType gives the semantic edge label attached from a Case hub
// to a context node of the given type
func RelationForType(t NodeType) string {
	switch t {
	case TypeBranch:
		return "MANAGED_BY"
	case TypeCustomer:
		return "OWNED_BY"
	case TypeProduct, TypeClaim:
		return "HAS_POLICY"
	case TypeAmount:
		return "HAS_AMOUNT"
	case TypeActivity:
		return "PERFORMS"
	case TypeTime:
		return "HAS_TIME"
	case TypeAccount:
		return "HAS_ACCOUNT"
	case TypeLocation:
		return "LOCATED_AT"
	case TypeOrganization, TypeVehicle:
		return "INVOLVES"
	default:
		return "HAS_ATTRIBUTE"
	}
}

// TypeFromExtracted standardizes the loosely typed output of the
// text-extraction collaborator into the controlled vocabulary. Ordered
// keyword rules over the raw type first, then over the label shape.
func TypeFromExtracted(rawType, label string) NodeType {
	t := strings.ToLower(strings.TrimSpace(rawType))
	l := strings.ToLower(strings.TrimSpace(label))

	if containsAny(t, "activity", "event", "call", "process") ||
		containsAny(l, "activated", "closed", "initiated", "received", "started", "ended", "application") {
		return TypeActivity
	}
	if strings.Contains(t, "time") || isoDatePattern.MatchString(l) {
		return TypeTime
	}
	if containsAny(t, "org", "company") ||
		containsAny(l, "towing", "repair", "mechanic", "collision", "service", "inc", "ltd") {
		return TypeOrganization
	}
	if strings.Contains(t, "branch") || strings.Contains(l, "branch") {
		return TypeBranch
	}
	if containsAny(t, "person", "director", "agent", "customer", "driver") ||
		strings.HasPrefix(l, "c0") || strings.Contains(l, "name") {
		return TypeCustomer
	}
	if containsAny(t, "loc", "city", "address", "state", "zip") {
		return TypeLocation
	}
	if strings.Contains(t, "account") || strings.HasPrefix(l, "a0") ||
		containsAny(l, "savings", "checking", "deposit") {
		return TypeAccount
	}
	if strings.Contains(t, "claim") || strings.Contains(t, "policy") {
		return TypeClaim
	}
	if strings.Contains(t, "vehicle") || strings.Contains(t, "car") {
		return TypeVehicle
	}

	if rawType != "" {
		return NodeType(strings.ToUpper(rawType[:1]) + strings.ToLower(rawType[1:]))
	}
	return TypeConcept
}

func containsAny(s string, keywords ...string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}
