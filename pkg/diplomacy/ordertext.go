package diplomacy

import (
	"fmt"
	"strings"
)

// OrderTextKind enumerates the kinds of orders representable in the textual
// order grammar.
type OrderTextKind int

const (
	TextHold        OrderTextKind = iota // A vie H
	TextMove                             // A bud - rum (movement); same shape for a retreat
	TextSupportHold                      // A tyr S A vie H
	TextSupportMove                      // A gal S A bud - rum
	TextConvoy                           // F mao C A bre - spa
	TextDisband                          // A war D, or DESTROY A war
	TextBuild                            // BUILD A vie
	TextWaive                            // WAIVE
)

// OrderText is a phase-agnostic order parsed from the textual grammar. A
// TextMove is a movement order in the Movement phase and a retreat order in
// the Retreat phase; the caller picks the conversion that matches the
// phase it is validating against.
type OrderText struct {
	Kind OrderTextKind

	// Unit being ordered (all kinds except TextWaive).
	UnitType UnitType
	Location string
	Coast    Coast

	// Target location (TextMove, TextBuild coast).
	Target      string
	TargetCoast Coast

	// Supported/convoyed unit (TextSupportHold, TextSupportMove, TextConvoy).
	AuxUnitType UnitType
	AuxLocation string
	AuxCoast    Coast

	// Destination of the supported/convoyed move (TextSupportMove, TextConvoy).
	AuxTarget      string
	AuxTargetCoast Coast
}

// FormatOrderText serializes a slice of OrderTexts to their canonical
// textual form. Multiple orders are separated by " ; ".
func FormatOrderText(orders []OrderText) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		parts = append(parts, formatSingleOrderText(o))
	}
	return strings.Join(parts, " ; ")
}

func formatSingleOrderText(o OrderText) string {
	if o.Kind == TextWaive {
		return "WAIVE"
	}

	var b strings.Builder
	b.Grow(32)

	if o.Kind == TextBuild {
		b.WriteString("BUILD ")
		writeUnit(&b, o.UnitType, o.Location, o.Coast)
		return b.String()
	}

	writeUnit(&b, o.UnitType, o.Location, o.Coast)

	switch o.Kind {
	case TextHold:
		b.WriteString(" H")

	case TextMove:
		b.WriteString(" - ")
		writeOrderLocation(&b, o.Target, o.TargetCoast)

	case TextSupportHold:
		b.WriteString(" S ")
		writeUnit(&b, o.AuxUnitType, o.AuxLocation, o.AuxCoast)
		b.WriteString(" H")

	case TextSupportMove:
		b.WriteString(" S ")
		writeUnit(&b, o.AuxUnitType, o.AuxLocation, o.AuxCoast)
		b.WriteString(" - ")
		writeOrderLocation(&b, o.AuxTarget, o.AuxTargetCoast)

	case TextConvoy:
		b.WriteString(" C A ")
		writeOrderLocation(&b, o.AuxLocation, o.AuxCoast)
		b.WriteString(" - ")
		writeOrderLocation(&b, o.AuxTarget, o.AuxTargetCoast)

	case TextDisband:
		b.WriteString(" D")
	}

	return b.String()
}

// writeUnit writes "A vie" or "F stp/nc" to the builder.
func writeUnit(b *strings.Builder, ut UnitType, province string, coast Coast) {
	if ut == Army {
		b.WriteByte('A')
	} else {
		b.WriteByte('F')
	}
	b.WriteByte(' ')
	writeOrderLocation(b, province, coast)
}

// writeOrderLocation writes a location like "vie" or "stp/nc".
func writeOrderLocation(b *strings.Builder, province string, coast Coast) {
	b.WriteString(province)
	if coast != NoCoast {
		b.WriteByte('/')
		b.WriteString(string(coast))
	}
}

// ParseOrderText parses a free-text order submission into OrderTexts. The
// submission may carry many orders, delimited explicitly with " ; " or
// simply concatenated; boundary detection splits on order-start markers
// (the bigrams "A <prov>"/"F <prov>", and the keywords BUILD, DESTROY,
// WAIVE), consuming a support or convoy order through its terminal H or
// "- <dest>" token before resuming the scan.
func ParseOrderText(s string) ([]OrderText, error) {
	allTokens := strings.Fields(s)
	tokens := make([]string, 0, len(allTokens))
	for _, tok := range allTokens {
		if tok == ";" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	var orders []OrderText
	for idx := 0; idx < len(tokens); {
		n, err := orderTokenLen(tokens[idx:])
		if err != nil {
			return nil, fmt.Errorf("order text: at token %d (%q): %w", idx, tokens[idx], err)
		}
		o, err := parseOrderTokens(tokens[idx : idx+n])
		if err != nil {
			return nil, fmt.Errorf("order text: parsing %q: %w", strings.Join(tokens[idx:idx+n], " "), err)
		}
		orders = append(orders, o)
		idx += n
	}
	return orders, nil
}

// orderTokenLen looks ahead from the start of tokens and returns how many
// tokens the next order consumes, without fully validating its contents
// (parseOrderTokens does that). This is the boundary detector: it knows just
// enough of the grammar's shape to find where one order ends and the next
// begins in an unseparated token stream.
func orderTokenLen(tokens []string) (int, error) {
	if len(tokens) == 0 {
		return 0, fmt.Errorf("empty order")
	}

	switch tokens[0] {
	case "WAIVE":
		return 1, nil

	case "BUILD", "DESTROY":
		if len(tokens) < 3 {
			return 0, fmt.Errorf("%s: too few tokens", tokens[0])
		}
		return 3, nil

	case "A", "F":
		if len(tokens) < 3 {
			return 0, fmt.Errorf("unit order: too few tokens")
		}
		switch tokens[2] {
		case "H", "D":
			return 3, nil
		case "-":
			if len(tokens) < 4 {
				return 0, fmt.Errorf("move: missing destination")
			}
			return 4, nil
		case "S":
			if len(tokens) < 6 {
				return 0, fmt.Errorf("support: too few tokens")
			}
			switch tokens[5] {
			case "H":
				return 6, nil
			case "-":
				if len(tokens) < 7 {
					return 0, fmt.Errorf("support move: missing destination")
				}
				return 7, nil
			default:
				return 0, fmt.Errorf("support: expected H or -, got %q", tokens[5])
			}
		case "C":
			if len(tokens) < 7 {
				return 0, fmt.Errorf("convoy: too few tokens")
			}
			return 7, nil
		default:
			return 0, fmt.Errorf("unit order: unknown action %q", tokens[2])
		}

	default:
		return 0, fmt.Errorf("unexpected token %q (expected A, F, BUILD, DESTROY, or WAIVE)", tokens[0])
	}
}

// parseOrderTokens parses a single order's tokens, already isolated by
// orderTokenLen, into an OrderText.
func parseOrderTokens(tokens []string) (OrderText, error) {
	if tokens[0] == "WAIVE" {
		return OrderText{Kind: TextWaive}, nil
	}

	if tokens[0] == "BUILD" || tokens[0] == "DESTROY" {
		unitType, err := parseUnitChar(tokens[1])
		if err != nil {
			return OrderText{}, err
		}
		prov, coast, err := parseLocation(tokens[2])
		if err != nil {
			return OrderText{}, fmt.Errorf("unit location: %w", err)
		}
		kind := TextBuild
		if tokens[0] == "DESTROY" {
			kind = TextDisband
		}
		return OrderText{Kind: kind, UnitType: unitType, Location: prov, Coast: coast}, nil
	}

	unitType, err := parseUnitChar(tokens[0])
	if err != nil {
		return OrderText{}, err
	}
	prov, coast, err := parseLocation(tokens[1])
	if err != nil {
		return OrderText{}, fmt.Errorf("unit location: %w", err)
	}

	o := OrderText{UnitType: unitType, Location: prov, Coast: coast}
	action := tokens[2]
	rest := tokens[3:]

	switch action {
	case "H":
		o.Kind = TextHold
		return o, nil

	case "-":
		o.Kind = TextMove
		o.Target, o.TargetCoast, err = parseLocation(rest[0])
		if err != nil {
			return OrderText{}, fmt.Errorf("move target: %w", err)
		}
		return o, nil

	case "D":
		o.Kind = TextDisband
		return o, nil

	case "S":
		return parseSupportTokens(o, rest)

	case "C":
		return parseConvoyTokens(o, rest)

	default:
		return OrderText{}, fmt.Errorf("unknown action %q", action)
	}
}

// parseSupportTokens parses the remainder of a support order after "S".
// Formats: "A vie H" (support hold) or "A bud - rum" (support move).
func parseSupportTokens(o OrderText, tokens []string) (OrderText, error) {
	auxUnit, err := parseUnitChar(tokens[0])
	if err != nil {
		return OrderText{}, fmt.Errorf("supported unit: %w", err)
	}
	auxLoc, auxCoast, err := parseLocation(tokens[1])
	if err != nil {
		return OrderText{}, fmt.Errorf("supported unit location: %w", err)
	}

	o.AuxUnitType = auxUnit
	o.AuxLocation = auxLoc
	o.AuxCoast = auxCoast

	switch tokens[2] {
	case "H":
		o.Kind = TextSupportHold
		return o, nil
	case "-":
		o.Kind = TextSupportMove
		o.AuxTarget, o.AuxTargetCoast, err = parseLocation(tokens[3])
		if err != nil {
			return OrderText{}, fmt.Errorf("support move target: %w", err)
		}
		return o, nil
	default:
		return OrderText{}, fmt.Errorf("support: expected H or -, got %q", tokens[2])
	}
}

// parseConvoyTokens parses the remainder of a convoy order after "C".
// Format: "A loc - dst".
func parseConvoyTokens(o OrderText, tokens []string) (OrderText, error) {
	if tokens[0] != "A" {
		return OrderText{}, fmt.Errorf("convoy: expected convoyed unit type A, got %q", tokens[0])
	}

	o.Kind = TextConvoy
	var err error
	o.AuxLocation, o.AuxCoast, err = parseLocation(tokens[1])
	if err != nil {
		return OrderText{}, fmt.Errorf("convoy source: %w", err)
	}

	if tokens[2] != "-" {
		return OrderText{}, fmt.Errorf("convoy: expected '-', got %q", tokens[2])
	}

	o.AuxTarget, o.AuxTargetCoast, err = parseLocation(tokens[3])
	if err != nil {
		return OrderText{}, fmt.Errorf("convoy target: %w", err)
	}

	o.AuxUnitType = Army
	return o, nil
}

// parseUnitChar parses "A" or "F" into a UnitType.
func parseUnitChar(s string) (UnitType, error) {
	switch s {
	case "A":
		return Army, nil
	case "F":
		return Fleet, nil
	default:
		return Army, fmt.Errorf("invalid unit type %q (expected A or F)", s)
	}
}

// parseLocation parses "vie" or "stp/nc" into province and coast.
func parseLocation(s string) (string, Coast, error) {
	parts := strings.SplitN(s, "/", 2)
	province := parts[0]
	if len(province) != 3 {
		return "", NoCoast, fmt.Errorf("invalid province %q (must be 3 lowercase letters)", province)
	}

	coast := NoCoast
	if len(parts) == 2 {
		c := Coast(parts[1])
		switch c {
		case NorthCoast, SouthCoast, EastCoast:
			coast = c
		default:
			return "", NoCoast, fmt.Errorf("invalid coast %q", parts[1])
		}
	}

	return province, coast, nil
}

// OrderToText converts a movement-phase Order to an OrderText.
func OrderToText(o Order) OrderText {
	d := OrderText{
		UnitType: o.UnitType,
		Location: o.Location,
		Coast:    o.Coast,
	}
	switch o.Type {
	case OrderHold:
		d.Kind = TextHold
	case OrderMove:
		d.Kind = TextMove
		d.Target = o.Target
		d.TargetCoast = o.TargetCoast
	case OrderSupport:
		if o.AuxTarget == "" {
			d.Kind = TextSupportHold
		} else {
			d.Kind = TextSupportMove
			d.AuxTarget = o.AuxTarget
		}
		d.AuxUnitType = o.AuxUnitType
		d.AuxLocation = o.AuxLoc
	case OrderConvoy:
		d.Kind = TextConvoy
		d.AuxUnitType = Army
		d.AuxLocation = o.AuxLoc
		d.AuxTarget = o.AuxTarget
	}
	return d
}

// RetreatOrderToText converts a RetreatOrder to an OrderText.
func RetreatOrderToText(o RetreatOrder) OrderText {
	d := OrderText{
		UnitType: o.UnitType,
		Location: o.Location,
		Coast:    o.Coast,
	}
	switch o.Type {
	case RetreatMove:
		d.Kind = TextMove
		d.Target = o.Target
		d.TargetCoast = o.TargetCoast
	case RetreatDisband:
		d.Kind = TextDisband
	}
	return d
}

// BuildOrderToText converts a BuildOrder to an OrderText.
func BuildOrderToText(o BuildOrder) OrderText {
	d := OrderText{
		UnitType: o.UnitType,
		Location: o.Location,
		Coast:    o.Coast,
	}
	switch o.Type {
	case BuildUnit:
		d.Kind = TextBuild
	case DisbandUnit:
		d.Kind = TextDisband
	case WaiveBuild:
		d.Kind = TextWaive
	}
	return d
}

// TextToOrder converts an OrderText back to a movement-phase Order. Only
// valid for TextHold, TextMove, TextSupportHold, TextSupportMove, TextConvoy.
func TextToOrder(d OrderText, power Power) Order {
	o := Order{
		UnitType: d.UnitType,
		Power:    power,
		Location: d.Location,
		Coast:    d.Coast,
	}
	switch d.Kind {
	case TextHold:
		o.Type = OrderHold
	case TextMove:
		o.Type = OrderMove
		o.Target = d.Target
		o.TargetCoast = d.TargetCoast
	case TextSupportHold:
		o.Type = OrderSupport
		o.AuxUnitType = d.AuxUnitType
		o.AuxLoc = d.AuxLocation
	case TextSupportMove:
		o.Type = OrderSupport
		o.AuxUnitType = d.AuxUnitType
		o.AuxLoc = d.AuxLocation
		o.AuxTarget = d.AuxTarget
	case TextConvoy:
		o.Type = OrderConvoy
		o.AuxLoc = d.AuxLocation
		o.AuxTarget = d.AuxTarget
		o.AuxUnitType = Army
	}
	return o
}

// TextToRetreatOrder converts an OrderText back to a RetreatOrder. Only
// valid for TextMove and TextDisband (retreat phase).
func TextToRetreatOrder(d OrderText, power Power) RetreatOrder {
	o := RetreatOrder{
		UnitType: d.UnitType,
		Power:    power,
		Location: d.Location,
		Coast:    d.Coast,
	}
	switch d.Kind {
	case TextMove:
		o.Type = RetreatMove
		o.Target = d.Target
		o.TargetCoast = d.TargetCoast
	case TextDisband:
		o.Type = RetreatDisband
	}
	return o
}

// TextToBuildOrder converts an OrderText back to a BuildOrder. Only valid
// for TextBuild, TextDisband (build phase), and TextWaive.
func TextToBuildOrder(d OrderText, power Power) BuildOrder {
	o := BuildOrder{
		Power:    power,
		UnitType: d.UnitType,
		Location: d.Location,
		Coast:    d.Coast,
	}
	switch d.Kind {
	case TextBuild:
		o.Type = BuildUnit
	case TextDisband:
		o.Type = DisbandUnit
	case TextWaive:
		o.Type = WaiveBuild
	}
	return o
}
