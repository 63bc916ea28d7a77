package soap

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var errUnknownType = errors.New("type is not in the known type registry")

// Element prefixes used inside Execute bodies. The request element declares
// a (contracts) and i (XML schema instance); the rest are declared where used.
const (
	declCollections = ` xmlns:b="` + NsCollections + `"`
	declXsd         = ` xmlns:c="` + NsXsd + `"`
	declSer         = ` xmlns:e="` + NsSerialization + `"`
	declArrays      = ` xmlns:f="` + NsArrays + `"`
)

func writeNil(b *strings.Builder, elem string) {
	b.WriteString(`<` + elem + ` i:nil="true"></` + elem + `>`)
}

func writeText(b *strings.Builder, elem, text string) {
	b.WriteString(`<` + elem + `>` + escapeText(text) + `</` + elem + `>`)
}

func writeScalar(b *strings.Builder, elem, typ, decl, text string) {
	b.WriteString(`<` + elem + ` i:type="` + typ + `"` + decl + `>` + escapeText(text) + `</` + elem + `>`)
}

// writeValue writes v as elem with an i:type attribute naming its type.
func writeValue(b *strings.Builder, elem string, v any) error {
	switch x := v.(type) {
	case nil:
		writeNil(b, elem)
	case string:
		writeScalar(b, elem, "c:string", declXsd, x)
	case bool:
		writeScalar(b, elem, "c:boolean", declXsd, strconv.FormatBool(x))
	case int:
		writeScalar(b, elem, "c:int", declXsd, strconv.Itoa(x))
	case int32:
		writeScalar(b, elem, "c:int", declXsd, strconv.FormatInt(int64(x), 10))
	case int64:
		writeScalar(b, elem, "c:long", declXsd, strconv.FormatInt(x, 10))
	case float64:
		writeScalar(b, elem, "c:double", declXsd, strconv.FormatFloat(x, 'g', -1, 64))
	case time.Time:
		writeScalar(b, elem, "c:dateTime", declXsd, x.UTC().Format(time.RFC3339Nano))
	case uuid.UUID:
		writeScalar(b, elem, "e:guid", declSer, x.String())
	case EntityReference:
		b.WriteString(`<` + elem + ` i:type="a:EntityReference">`)
		writeEntityReference(b, x)
		b.WriteString(`</` + elem + `>`)
	case Entity:
		b.WriteString(`<` + elem + ` i:type="a:Entity">`)
		if err := writeEntity(b, x); err != nil {
			return err
		}
		b.WriteString(`</` + elem + `>`)
	case EntityCollection:
		b.WriteString(`<` + elem + ` i:type="a:EntityCollection">`)
		if err := writeEntityCollection(b, x); err != nil {
			return err
		}
		b.WriteString(`</` + elem + `>`)
	case ColumnSet:
		b.WriteString(`<` + elem + ` i:type="a:ColumnSet">`)
		writeColumnSet(b, x)
		b.WriteString(`</` + elem + `>`)
	case OptionSetValue:
		b.WriteString(`<` + elem + ` i:type="a:OptionSetValue">`)
		writeText(b, "a:Value", strconv.Itoa(x.Value))
		b.WriteString(`</` + elem + `>`)
	case Money:
		b.WriteString(`<` + elem + ` i:type="a:Money">`)
		writeText(b, "a:Value", strconv.FormatFloat(x.Value, 'f', -1, 64))
		b.WriteString(`</` + elem + `>`)
	case Relationship:
		b.WriteString(`<` + elem + ` i:type="a:Relationship">`)
		if x.PrimaryEntityRole == "" {
			writeNil(b, "a:PrimaryEntityRole")
		} else {
			writeText(b, "a:PrimaryEntityRole", x.PrimaryEntityRole)
		}
		writeText(b, "a:SchemaName", x.SchemaName)
		b.WriteString(`</` + elem + `>`)
	case EntityReferenceCollection:
		b.WriteString(`<` + elem + ` i:type="a:EntityReferenceCollection">`)
		for _, ref := range x {
			b.WriteString(`<a:EntityReference>`)
			writeEntityReference(b, ref)
			b.WriteString(`</a:EntityReference>`)
		}
		b.WriteString(`</` + elem + `>`)
	case FetchExpression:
		b.WriteString(`<` + elem + ` i:type="a:FetchExpression">`)
		writeText(b, "a:Query", x.Query)
		b.WriteString(`</` + elem + `>`)
	case QueryExpression:
		b.WriteString(`<` + elem + ` i:type="a:QueryExpression">`)
		if err := writeQueryExpression(b, x); err != nil {
			return err
		}
		b.WriteString(`</` + elem + `>`)
	default:
		return &SerializationError{Op: "encode value", Type: fmt.Sprintf("%T", v), Err: errUnknownType}
	}
	return nil
}

// writeParameters writes a KeyValuePairOfstringanyType collection in sorted
// key order.
func writeParameters(b *strings.Builder, elem string, p Parameters) error {
	b.WriteString(`<` + elem + declCollections + `>`)
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteString(`<a:KeyValuePairOfstringanyType>`)
		writeText(b, "b:key", k)
		if err := writeValue(b, "b:value", p[k]); err != nil {
			var se *SerializationError
			if errors.As(err, &se) && se.Op == "encode value" {
				se.Op = "encode value of " + strconv.Quote(k)
			}
			return err
		}
		b.WriteString(`</a:KeyValuePairOfstringanyType>`)
	}
	b.WriteString(`</` + elem + `>`)
	return nil
}

func writeEntityReference(b *strings.Builder, ref EntityReference) {
	writeText(b, "a:Id", ref.ID.String())
	writeText(b, "a:LogicalName", ref.LogicalName)
	if ref.Name == "" {
		writeNil(b, "a:Name")
	} else {
		writeText(b, "a:Name", ref.Name)
	}
}

func writeEntity(b *strings.Builder, e Entity) error {
	if err := writeParameters(b, "a:Attributes", e.Attributes); err != nil {
		return err
	}
	writeNil(b, "a:EntityState")
	b.WriteString(`<a:FormattedValues` + declCollections + `></a:FormattedValues>`)
	writeText(b, "a:Id", e.ID.String())
	writeText(b, "a:LogicalName", e.LogicalName)
	b.WriteString(`<a:RelatedEntities` + declCollections + `></a:RelatedEntities>`)
	return nil
}

func writeEntityCollection(b *strings.Builder, c EntityCollection) error {
	b.WriteString(`<a:Entities>`)
	for _, e := range c.Entities {
		b.WriteString(`<a:Entity>`)
		if err := writeEntity(b, e); err != nil {
			return err
		}
		b.WriteString(`</a:Entity>`)
	}
	b.WriteString(`</a:Entities>`)
	writeText(b, "a:EntityName", c.EntityName)
	writeText(b, "a:MoreRecords", strconv.FormatBool(c.MoreRecords))
	if c.PagingCookie == "" {
		writeNil(b, "a:PagingCookie")
	} else {
		writeText(b, "a:PagingCookie", c.PagingCookie)
	}
	writeText(b, "a:TotalRecordCount", strconv.Itoa(c.TotalRecordCount))
	return nil
}

func writeColumnSet(b *strings.Builder, cs ColumnSet) {
	writeText(b, "a:AllColumns", strconv.FormatBool(cs.AllColumns))
	b.WriteString(`<a:Columns` + declArrays + `>`)
	for _, c := range cs.Columns {
		writeText(b, "f:string", c)
	}
	b.WriteString(`</a:Columns>`)
}

func writeQueryExpression(b *strings.Builder, q QueryExpression) error {
	b.WriteString(`<a:ColumnSet>`)
	writeColumnSet(b, q.ColumnSet)
	b.WriteString(`</a:ColumnSet>`)

	b.WriteString(`<a:Criteria><a:Conditions>`)
	for _, c := range q.Criteria.Conditions {
		b.WriteString(`<a:ConditionExpression>`)
		writeText(b, "a:AttributeName", c.AttributeName)
		writeText(b, "a:Operator", orDefault(c.Operator, "Equal"))
		b.WriteString(`<a:Values` + declArrays + `>`)
		for _, v := range c.Values {
			if err := writeValue(b, "f:anyType", v); err != nil {
				return err
			}
		}
		b.WriteString(`</a:Values>`)
		b.WriteString(`</a:ConditionExpression>`)
	}
	b.WriteString(`</a:Conditions>`)
	writeText(b, "a:FilterOperator", orDefault(q.Criteria.FilterOperator, "And"))
	b.WriteString(`</a:Criteria>`)

	writeText(b, "a:Distinct", strconv.FormatBool(q.Distinct))
	writeText(b, "a:EntityName", q.EntityName)

	b.WriteString(`<a:Orders>`)
	for _, o := range q.Orders {
		b.WriteString(`<a:OrderExpression>`)
		writeText(b, "a:AttributeName", o.AttributeName)
		writeText(b, "a:OrderType", orDefault(o.OrderType, "Ascending"))
		b.WriteString(`</a:OrderExpression>`)
	}
	b.WriteString(`</a:Orders>`)

	b.WriteString(`<a:PageInfo>`)
	writeText(b, "a:Count", strconv.Itoa(q.PageInfo.Count))
	writeText(b, "a:PageNumber", strconv.Itoa(q.PageInfo.PageNumber))
	if q.PageInfo.PagingCookie == "" {
		writeNil(b, "a:PagingCookie")
	} else {
		writeText(b, "a:PagingCookie", q.PageInfo.PagingCookie)
	}
	writeText(b, "a:ReturnTotalRecordCount", strconv.FormatBool(q.PageInfo.ReturnTotalRecordCount))
	b.WriteString(`</a:PageInfo>`)

	if q.TopCount > 0 {
		writeText(b, "a:TopCount", strconv.Itoa(q.TopCount))
	} else {
		writeNil(b, "a:TopCount")
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// decodeValue decodes an element carrying an i:type attribute.
func decodeValue(n *node) (any, error) {
	if n == nil {
		return nil, &SerializationError{Op: "decode value", Err: errors.New("missing value element")}
	}
	if n.isNil() {
		return nil, nil
	}
	typ := n.xsiType()
	v, err := decodeTyped(typ, n)
	if err != nil {
		var se *SerializationError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &SerializationError{Op: "decode value", Type: typ, Err: err}
	}
	return v, nil
}

func decodeTyped(typ string, n *node) (any, error) {
	switch typ {
	case "string":
		return n.text, nil
	case "boolean":
		return strconv.ParseBool(n.value())
	case "int":
		return strconv.Atoi(n.value())
	case "long":
		return strconv.ParseInt(n.value(), 10, 64)
	case "double", "decimal":
		return strconv.ParseFloat(n.value(), 64)
	case "dateTime":
		return time.Parse(time.RFC3339Nano, n.value())
	case "guid":
		return uuid.Parse(n.value())
	case "EntityReference":
		return decodeEntityReference(n)
	case "Entity":
		return decodeEntity(n)
	case "EntityCollection":
		return decodeEntityCollection(n)
	case "ColumnSet":
		return decodeColumnSet(n)
	case "OptionSetValue":
		v, err := strconv.Atoi(n.child("Value").value())
		return OptionSetValue{Value: v}, err
	case "Money":
		v, err := strconv.ParseFloat(n.child("Value").value(), 64)
		return Money{Value: v}, err
	case "Relationship":
		return Relationship{
			SchemaName:        n.child("SchemaName").value(),
			PrimaryEntityRole: n.child("PrimaryEntityRole").value(),
		}, nil
	case "EntityReferenceCollection":
		var refs EntityReferenceCollection
		for _, c := range n.all("EntityReference") {
			ref, err := decodeEntityReference(c)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
		return refs, nil
	case "FetchExpression":
		return FetchExpression{Query: n.child("Query").text}, nil
	case "QueryExpression":
		return decodeQueryExpression(n)
	default:
		return nil, &SerializationError{Op: "decode value", Type: typ, Err: errUnknownType}
	}
}

func decodeParameters(n *node) (Parameters, error) {
	pairs := n.all("KeyValuePairOfstringanyType")
	if len(pairs) == 0 {
		return nil, nil
	}
	p := make(Parameters, len(pairs))
	for _, kv := range pairs {
		key := kv.child("key")
		if key == nil {
			return nil, &SerializationError{Op: "decode parameters", Err: errors.New("pair without key")}
		}
		v, err := decodeValue(kv.child("value"))
		if err != nil {
			return nil, err
		}
		p[key.text] = v
	}
	return p, nil
}

func decodeEntityReference(n *node) (EntityReference, error) {
	id, err := decodeID(n)
	if err != nil {
		return EntityReference{}, err
	}
	return EntityReference{
		LogicalName: n.child("LogicalName").value(),
		ID:          id,
		Name:        n.child("Name").value(),
	}, nil
}

func decodeEntity(n *node) (Entity, error) {
	id, err := decodeID(n)
	if err != nil {
		return Entity{}, err
	}
	attrs, err := decodeParameters(n.child("Attributes"))
	if err != nil {
		return Entity{}, err
	}
	return Entity{
		LogicalName: n.child("LogicalName").value(),
		ID:          id,
		Attributes:  attrs,
	}, nil
}

func decodeID(n *node) (uuid.UUID, error) {
	raw := n.child("Id").value()
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &SerializationError{Op: "decode Id", Err: err}
	}
	return id, nil
}

func decodeEntityCollection(n *node) (EntityCollection, error) {
	c := EntityCollection{
		EntityName:   n.child("EntityName").value(),
		MoreRecords:  n.child("MoreRecords").value() == "true",
		PagingCookie: n.child("PagingCookie").value(),
	}
	if v := n.child("TotalRecordCount").value(); v != "" {
		total, err := strconv.Atoi(v)
		if err != nil {
			return EntityCollection{}, &SerializationError{Op: "decode TotalRecordCount", Err: err}
		}
		c.TotalRecordCount = total
	}
	for _, en := range n.path("Entities").all("Entity") {
		e, err := decodeEntity(en)
		if err != nil {
			return EntityCollection{}, err
		}
		c.Entities = append(c.Entities, e)
	}
	return c, nil
}

func decodeColumnSet(n *node) (ColumnSet, error) {
	cs := ColumnSet{AllColumns: n.child("AllColumns").value() == "true"}
	for _, c := range n.path("Columns").all("string") {
		cs.Columns = append(cs.Columns, c.text)
	}
	return cs, nil
}

func decodeQueryExpression(n *node) (QueryExpression, error) {
	cs, _ := decodeColumnSet(n.child("ColumnSet"))
	q := QueryExpression{
		EntityName: n.child("EntityName").value(),
		ColumnSet:  cs,
		Distinct:   n.child("Distinct").value() == "true",
	}
	crit := n.child("Criteria")
	q.Criteria.FilterOperator = crit.child("FilterOperator").value()
	for _, cn := range crit.path("Conditions").all("ConditionExpression") {
		c := ConditionExpression{
			AttributeName: cn.child("AttributeName").value(),
			Operator:      cn.child("Operator").value(),
		}
		for _, vn := range cn.child("Values").elems() {
			v, err := decodeValue(vn)
			if err != nil {
				return QueryExpression{}, err
			}
			c.Values = append(c.Values, v)
		}
		q.Criteria.Conditions = append(q.Criteria.Conditions, c)
	}
	for _, on := range n.path("Orders").all("OrderExpression") {
		q.Orders = append(q.Orders, OrderExpression{
			AttributeName: on.child("AttributeName").value(),
			OrderType:     on.child("OrderType").value(),
		})
	}
	page := n.child("PageInfo")
	var err error
	if q.PageInfo.Count, err = atoiOrZero(page.child("Count").value()); err != nil {
		return QueryExpression{}, err
	}
	if q.PageInfo.PageNumber, err = atoiOrZero(page.child("PageNumber").value()); err != nil {
		return QueryExpression{}, err
	}
	q.PageInfo.PagingCookie = page.child("PagingCookie").value()
	q.PageInfo.ReturnTotalRecordCount = page.child("ReturnTotalRecordCount").value() == "true"
	if q.TopCount, err = atoiOrZero(n.child("TopCount").value()); err != nil {
		return QueryExpression{}, err
	}
	return q, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &SerializationError{Op: "decode integer", Err: err}
	}
	return v, nil
}
