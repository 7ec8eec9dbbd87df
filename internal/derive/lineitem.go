package derive

import "shopetl/internal/mapping"

// LineItem adds the per-line sales breakdown to r:
//
//	amount_gross_sales     = price * quantity
//	amount_returns         = (origin_quantity - current_quantity) * price
//	amount_discounts       = (pre_tax_price - price) * current_quantity
//	amount_net_sales       = current_quantity * pre_tax_price
//	amount_net_sales_check = amount_net_sales ~ gross + returns + discounts
//	return_check           = amount_returns != 0
//
// return_check only says the quantities moved; partial fulfilment trips it
// as well as a refund does.
func LineItem(r mapping.Record) mapping.Record {
	price := Float(r["price"])
	qty := Float(r["quantity"])
	origin := Float(r["origin_quantity"])
	current := Float(r["current_quantity"])
	preTax := Float(r["pre_tax_price"])

	gross := price * qty
	returns := (origin - current) * price
	discounts := (preTax - price) * current
	net := current * preTax

	r["amount_gross_sales"] = gross
	r["amount_returns"] = returns
	r["amount_discounts"] = discounts
	r["amount_net_sales"] = net
	r["amount_net_sales_check"] = Close(net, gross+returns+discounts)
	r["return_check"] = returns != 0
	return r
}
