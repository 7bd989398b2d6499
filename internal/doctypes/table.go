package doctypes

func str(name, label string) Field  { return Field{Name: name, Label: label, Kind: KindString} }
func num(name, label string) Field  { return Field{Name: name, Label: label, Kind: KindNumber} }
func flag(name, label string) Field { return Field{Name: name, Label: label, Kind: KindBoolean} }

func group(name, label string, sub ...Field) Field {
	return Field{Name: name, Label: label, Kind: KindGroup, Fields: sub}
}

func req(f Field) Field {
	f.Required = true
	return f
}

func stateLines(extra ...Field) Field {
	sub := []Field{req(str("state", "State")), str("state_id", "Payer state ID number")}
	sub = append(sub, extra...)
	sub = append(sub, num("state_tax_withheld", "State tax withheld"))
	return group("state_lines", "State tax lines", sub...)
}

func taxYear() Field { return str("tax_year", "Tax year") }

// table lists every known type in display order. Entries without a schema can be
// classified but not extracted.
var table = []struct {
	typ   Type
	title string
	build func() *Schema
}{
	{W2, "Form W-2, Wage and Tax Statement", w2Schema},
	{Form1099INT, "Form 1099-INT, Interest Income", int1099Schema},
	{Form1099DIV, "Form 1099-DIV, Dividends and Distributions", div1099Schema},
	{Form1099NEC, "Form 1099-NEC, Nonemployee Compensation", nec1099Schema},
	{Form1099MISC, "Form 1099-MISC, Miscellaneous Information", misc1099Schema},
	{Form1099R, "Form 1099-R, Distributions From Pensions, Annuities, IRAs", r1099Schema},
	{Form1099G, "Form 1099-G, Certain Government Payments", g1099Schema},
	{Form1099B, "Form 1099-B, Proceeds From Broker Transactions", b1099Schema},
	{Form1099K, "Form 1099-K, Payment Card and Third Party Network Transactions", k1099Schema},
	{SSA1099, "Form SSA-1099, Social Security Benefit Statement", ssa1099Schema},
	{W2G, "Form W-2G, Certain Gambling Winnings", w2gSchema},
	{Form1098, "Form 1098, Mortgage Interest Statement", mortgage1098Schema},
	{Form1098T, "Form 1098-T, Tuition Statement", tuition1098Schema},
	{Form1098E, "Form 1098-E, Student Loan Interest Statement", studentLoan1098Schema},
	{Form1095A, "Form 1095-A, Health Insurance Marketplace Statement", marketplace1095Schema},
	{ScheduleK1, "Schedule K-1 (Form 1065), Partner's Share of Income", k1Schema},
	{DriversLicense, "Driver's license", driversLicenseSchema},
	{StateID, "State-issued identification card", stateIDSchema},
	{SSNCard, "Social Security card", ssnCardSchema},
	{BankStatement, "Bank or brokerage account statement", nil},
	{PriorYearTax, "Prior-year tax return", nil},
	{Other, "Other or unrecognized document", nil},
}

// byType indexes table; a nil Schema means classify-only.
var byType = func() map[Type]*Schema {
	m := make(map[Type]*Schema, len(table))
	for _, e := range table {
		var s *Schema
		if e.build != nil {
			s = e.build()
			s.Type = e.typ
			s.Title = e.title
		}
		m[e.typ] = s
	}
	return m
}()

var titles = func() map[Type]string {
	m := make(map[Type]string, len(table))
	for _, e := range table {
		m[e.typ] = e.title
	}
	return m
}()

func w2Schema() *Schema {
	return &Schema{
		Instructions: "Read every box of the W-2. Box 12 may contain up to four code/amount pairs. Report each state and locality row from boxes 15-20 separately.",
		Fields: []Field{
			req(str("employer_ein", "Box b: Employer identification number")),
			req(str("employer_name", "Box c: Employer name")),
			str("employer_address", "Box c: Employer address"),
			str("control_number", "Box d: Control number"),
			req(str("employee_ssn", "Box a: Employee SSN")),
			req(str("employee_name", "Box e: Employee name")),
			str("employee_address", "Box f: Employee address"),
			req(num("wages", "Box 1: Wages, tips, other compensation")),
			req(num("federal_withholding", "Box 2: Federal income tax withheld")),
			num("social_security_wages", "Box 3: Social security wages"),
			num("social_security_tax", "Box 4: Social security tax withheld"),
			num("medicare_wages", "Box 5: Medicare wages and tips"),
			num("medicare_tax", "Box 6: Medicare tax withheld"),
			num("social_security_tips", "Box 7: Social security tips"),
			num("allocated_tips", "Box 8: Allocated tips"),
			num("dependent_care_benefits", "Box 10: Dependent care benefits"),
			num("nonqualified_plans", "Box 11: Nonqualified plans"),
			group("box12", "Box 12 codes",
				req(str("code", "Code")),
				req(num("amount", "Amount")),
			),
			flag("statutory_employee", "Box 13: Statutory employee"),
			flag("retirement_plan", "Box 13: Retirement plan"),
			flag("third_party_sick_pay", "Box 13: Third-party sick pay"),
			group("box14", "Box 14: Other",
				str("description", "Description"),
				num("amount", "Amount"),
			),
			group("state_lines", "Boxes 15-20: State and local",
				req(str("state", "Box 15: State")),
				str("employer_state_id", "Box 15: Employer state ID number"),
				num("state_wages", "Box 16: State wages"),
				num("state_tax", "Box 17: State income tax"),
				num("local_wages", "Box 18: Local wages"),
				num("local_tax", "Box 19: Local income tax"),
				str("locality_name", "Box 20: Locality name"),
			),
			taxYear(),
		},
	}
}

func int1099Schema() *Schema {
	return &Schema{
		Instructions: "Amounts are in US dollars. Leave a box null when it is blank on the form.",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			req(num("interest_income", "Box 1: Interest income")),
			num("early_withdrawal_penalty", "Box 2: Early withdrawal penalty"),
			num("us_savings_bond_interest", "Box 3: Interest on U.S. Savings Bonds and Treasury obligations"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			num("investment_expenses", "Box 5: Investment expenses"),
			num("foreign_tax_paid", "Box 6: Foreign tax paid"),
			str("foreign_country", "Box 7: Foreign country or U.S. possession"),
			num("tax_exempt_interest", "Box 8: Tax-exempt interest"),
			num("private_activity_bond_interest", "Box 9: Specified private activity bond interest"),
			num("market_discount", "Box 10: Market discount"),
			num("bond_premium", "Box 11: Bond premium"),
			flag("fatca_filing", "FATCA filing requirement"),
			stateLines(),
			taxYear(),
		},
	}
}

func div1099Schema() *Schema {
	return &Schema{
		Instructions: "Amounts are in US dollars. Box 1b is a subset of box 1a; report both as printed.",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			req(num("total_ordinary_dividends", "Box 1a: Total ordinary dividends")),
			num("qualified_dividends", "Box 1b: Qualified dividends"),
			num("total_capital_gain", "Box 2a: Total capital gain distributions"),
			num("unrecaptured_1250_gain", "Box 2b: Unrecaptured Sec. 1250 gain"),
			num("section_1202_gain", "Box 2c: Section 1202 gain"),
			num("collectibles_gain", "Box 2d: Collectibles (28%) gain"),
			num("nondividend_distributions", "Box 3: Nondividend distributions"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			num("section_199a_dividends", "Box 5: Section 199A dividends"),
			num("foreign_tax_paid", "Box 7: Foreign tax paid"),
			num("exempt_interest_dividends", "Box 12: Exempt-interest dividends"),
			flag("fatca_filing", "FATCA filing requirement"),
			stateLines(),
			taxYear(),
		},
	}
}

func nec1099Schema() *Schema {
	return &Schema{
		Instructions: "Box 2 is a checkbox; report true only when it is marked.",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			req(num("nonemployee_compensation", "Box 1: Nonemployee compensation")),
			flag("direct_sales", "Box 2: Direct sales of $5,000 or more"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			stateLines(num("state_income", "Box 7: State income")),
			taxYear(),
		},
	}
}

func misc1099Schema() *Schema {
	return &Schema{
		Instructions: "Most boxes are blank on a typical 1099-MISC; leave blank boxes null.",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			num("rents", "Box 1: Rents"),
			num("royalties", "Box 2: Royalties"),
			num("other_income", "Box 3: Other income"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			num("fishing_boat_proceeds", "Box 5: Fishing boat proceeds"),
			num("medical_payments", "Box 6: Medical and health care payments"),
			flag("direct_sales", "Box 7: Direct sales of $5,000 or more"),
			num("crop_insurance", "Box 9: Crop insurance proceeds"),
			num("attorney_proceeds", "Box 10: Gross proceeds paid to an attorney"),
			num("section_409a_deferrals", "Box 12: Section 409A deferrals"),
			flag("fatca_filing", "Box 13: FATCA filing requirement"),
			stateLines(num("state_income", "Box 18: State income")),
			taxYear(),
		},
	}
}

func r1099Schema() *Schema {
	return &Schema{
		Instructions: "Box 7 may hold one or two distribution codes; report them as printed, for example \"7\" or \"G4\".",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			req(num("gross_distribution", "Box 1: Gross distribution")),
			num("taxable_amount", "Box 2a: Taxable amount"),
			flag("taxable_amount_not_determined", "Box 2b: Taxable amount not determined"),
			flag("total_distribution", "Box 2b: Total distribution"),
			num("capital_gain", "Box 3: Capital gain"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			num("employee_contributions", "Box 5: Employee contributions"),
			req(str("distribution_codes", "Box 7: Distribution code(s)")),
			flag("ira_sep_simple", "Box 7: IRA/SEP/SIMPLE"),
			stateLines(num("state_distribution", "Box 16: State distribution")),
			taxYear(),
		},
	}
}

func g1099Schema() *Schema {
	return &Schema{
		Instructions: "Box 3 is the tax year the refund in box 2 relates to, not the statement year.",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			str("payer_tin", "Payer TIN"),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			num("unemployment_compensation", "Box 1: Unemployment compensation"),
			num("state_local_refund", "Box 2: State or local income tax refunds"),
			str("refund_tax_year", "Box 3: Box 2 amount is for tax year"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			num("rtaa_payments", "Box 5: RTAA payments"),
			num("taxable_grants", "Box 6: Taxable grants"),
			num("agriculture_payments", "Box 7: Agriculture payments"),
			flag("trade_or_business", "Box 8: Trade or business income"),
			stateLines(),
			taxYear(),
		},
	}
}

func b1099Schema() *Schema {
	return &Schema{
		Instructions: "Report one transaction row per sale. Consolidated statements list many rows; include all of them. Term is \"short\" or \"long\".",
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("recipient_name", "Recipient name"),
			req(str("recipient_tin", "Recipient TIN")),
			req(group("transactions", "Transactions",
				req(str("description", "Box 1a: Description of property")),
				str("date_acquired", "Box 1b: Date acquired"),
				req(str("date_sold", "Box 1c: Date sold or disposed")),
				req(num("proceeds", "Box 1d: Proceeds")),
				num("cost_basis", "Box 1e: Cost or other basis"),
				num("wash_sale_loss_disallowed", "Box 1g: Wash sale loss disallowed"),
				num("federal_withholding", "Box 4: Federal income tax withheld"),
				str("term", "Box 2: Short-term or long-term"),
				flag("basis_reported_to_irs", "Box 12: Basis reported to IRS"),
				flag("noncovered_security", "Box 5: Noncovered security"),
			)),
			num("aggregate_profit_loss_on_contracts", "Box 11: Aggregate profit or (loss) on contracts"),
			stateLines(),
			taxYear(),
		},
	}
}

func k1099Schema() *Schema {
	return &Schema{
		Instructions: "Boxes 5a-5l are monthly gross amounts; report one row per month that has a value.",
		Fields: []Field{
			req(str("filer_name", "Filer name")),
			req(str("filer_tin", "Filer TIN")),
			str("payee_name", "Payee name"),
			req(str("payee_tin", "Payee TIN")),
			req(num("gross_amount", "Box 1a: Gross amount of payment card/third party network transactions")),
			num("card_not_present", "Box 1b: Card not present transactions"),
			str("merchant_category_code", "Box 2: Merchant category code"),
			num("number_of_transactions", "Box 3: Number of payment transactions"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			group("monthly_amounts", "Boxes 5a-5l: Monthly amounts",
				req(str("month", "Month")),
				num("amount", "Amount"),
			),
			stateLines(),
			taxYear(),
		},
	}
}

func ssa1099Schema() *Schema {
	return &Schema{
		Instructions: "Box 5 is net benefits (box 3 minus box 4). Report it as printed even if it is negative.",
		Fields: []Field{
			req(str("beneficiary_name", "Box 1: Name")),
			req(str("beneficiary_ssn", "Box 2: Beneficiary's Social Security number")),
			req(num("benefits_paid", "Box 3: Benefits paid")),
			num("benefits_repaid", "Box 4: Benefits repaid to SSA"),
			req(num("net_benefits", "Box 5: Net benefits")),
			num("voluntary_federal_withholding", "Box 6: Voluntary federal income tax withheld"),
			num("medicare_premiums", "Medicare Part B premiums deducted"),
			taxYear(),
		},
	}
}

func w2gSchema() *Schema {
	return &Schema{
		Fields: []Field{
			req(str("payer_name", "Payer name")),
			req(str("payer_tin", "Payer TIN")),
			str("winner_name", "Winner name"),
			req(str("winner_tin", "Winner TIN")),
			req(num("gross_winnings", "Box 1: Reportable winnings")),
			str("date_won", "Box 2: Date won"),
			str("type_of_wager", "Box 3: Type of wager"),
			num("federal_withholding", "Box 4: Federal income tax withheld"),
			str("transaction", "Box 5: Transaction"),
			str("race", "Box 6: Race"),
			stateLines(num("state_winnings", "Box 14: State winnings")),
			taxYear(),
		},
	}
}

func mortgage1098Schema() *Schema {
	return &Schema{
		Instructions: "Box 7 is a checkbox stating the property address matches the borrower's address.",
		Fields: []Field{
			req(str("lender_name", "Recipient/Lender name")),
			req(str("lender_tin", "Recipient/Lender TIN")),
			str("borrower_name", "Payer/Borrower name"),
			req(str("borrower_tin", "Payer/Borrower TIN")),
			req(num("mortgage_interest", "Box 1: Mortgage interest received")),
			num("outstanding_principal", "Box 2: Outstanding mortgage principal"),
			str("origination_date", "Box 3: Mortgage origination date"),
			num("refund_of_overpaid_interest", "Box 4: Refund of overpaid interest"),
			num("mortgage_insurance_premiums", "Box 5: Mortgage insurance premiums"),
			num("points_paid", "Box 6: Points paid on purchase of principal residence"),
			flag("property_address_same", "Box 7: Property address same as borrower"),
			str("property_address", "Box 8: Address of property securing mortgage"),
			num("number_of_properties", "Box 9: Number of properties securing the mortgage"),
			str("acquisition_date", "Box 11: Mortgage acquisition date"),
			taxYear(),
		},
	}
}

func tuition1098Schema() *Schema {
	return &Schema{
		Fields: []Field{
			req(str("filer_name", "Filer name (institution)")),
			req(str("filer_tin", "Filer TIN")),
			str("student_name", "Student name"),
			req(str("student_tin", "Student TIN")),
			req(num("payments_received", "Box 1: Payments received for qualified tuition and related expenses")),
			num("prior_year_adjustments", "Box 4: Adjustments made for a prior year"),
			num("scholarships_grants", "Box 5: Scholarships or grants"),
			num("prior_year_scholarship_adjustments", "Box 6: Adjustments to scholarships or grants for a prior year"),
			flag("includes_next_period", "Box 7: Amount includes amounts for an academic period beginning January-March"),
			flag("at_least_half_time", "Box 8: At least half-time student"),
			flag("graduate_student", "Box 9: Graduate student"),
			num("insurance_refund", "Box 10: Insurance contract reimbursement/refund"),
			taxYear(),
		},
	}
}

func studentLoan1098Schema() *Schema {
	return &Schema{
		Fields: []Field{
			req(str("lender_name", "Recipient/Lender name")),
			req(str("lender_tin", "Recipient/Lender TIN")),
			str("borrower_name", "Borrower name"),
			req(str("borrower_tin", "Borrower TIN")),
			req(num("student_loan_interest", "Box 1: Student loan interest received by lender")),
			flag("excludes_origination_fees", "Box 2: Box 1 does not include loan origination fees or capitalized interest"),
			taxYear(),
		},
	}
}

func marketplace1095Schema() *Schema {
	return &Schema{
		Instructions: "Part III has one row per month plus an annual total; report the twelve monthly rows only. Part II lists covered individuals.",
		Fields: []Field{
			str("marketplace_id", "Line 1: Marketplace identifier"),
			req(str("policy_number", "Line 2: Marketplace-assigned policy number")),
			str("policy_issuer", "Line 3: Policy issuer's name"),
			req(str("recipient_name", "Line 4: Recipient's name")),
			str("recipient_tin", "Line 5: Recipient's SSN"),
			str("policy_start_date", "Line 10: Policy start date"),
			str("policy_termination_date", "Line 11: Policy termination date"),
			group("covered_individuals", "Part II: Covered individuals",
				req(str("name", "Covered individual name")),
				str("ssn", "SSN"),
				str("date_of_birth", "Date of birth"),
				str("coverage_start", "Coverage start date"),
				str("coverage_end", "Coverage termination date"),
			),
			req(group("monthly_premiums", "Part III: Coverage information",
				req(str("month", "Month")),
				num("enrollment_premium", "Column A: Monthly enrollment premiums"),
				num("slcsp_premium", "Column B: Monthly second lowest cost silver plan premium"),
				num("advance_ptc", "Column C: Monthly advance payment of premium tax credit"),
			)),
			taxYear(),
		},
	}
}

func k1Schema() *Schema {
	return &Schema{
		Instructions: "Boxes 11 and 14 carry code/amount pairs; report each pair as its own row.",
		Fields: []Field{
			req(str("partnership_name", "Part I: Partnership name")),
			req(str("partnership_ein", "Part I: Partnership EIN")),
			str("partner_name", "Part II: Partner name"),
			req(str("partner_tin", "Part II: Partner identifying number")),
			str("partner_type", "Part II: General or limited partner"),
			num("ordinary_business_income", "Box 1: Ordinary business income (loss)"),
			num("net_rental_real_estate_income", "Box 2: Net rental real estate income (loss)"),
			num("other_net_rental_income", "Box 3: Other net rental income (loss)"),
			num("guaranteed_payments", "Box 4: Guaranteed payments"),
			num("interest_income", "Box 5: Interest income"),
			num("ordinary_dividends", "Box 6a: Ordinary dividends"),
			num("qualified_dividends", "Box 6b: Qualified dividends"),
			num("royalties", "Box 7: Royalties"),
			num("net_short_term_capital_gain", "Box 8: Net short-term capital gain (loss)"),
			num("net_long_term_capital_gain", "Box 9a: Net long-term capital gain (loss)"),
			num("net_section_1231_gain", "Box 10: Net section 1231 gain (loss)"),
			group("other_income", "Box 11: Other income (loss)",
				req(str("code", "Code")),
				num("amount", "Amount"),
			),
			num("section_179_deduction", "Box 12: Section 179 deduction"),
			group("self_employment_earnings", "Box 14: Self-employment earnings (loss)",
				req(str("code", "Code")),
				num("amount", "Amount"),
			),
			num("distributions", "Box 19: Distributions"),
			flag("final_k1", "Final K-1"),
			flag("amended_k1", "Amended K-1"),
			taxYear(),
		},
	}
}

func driversLicenseSchema() *Schema {
	return &Schema{
		Instructions: "Dates are MM/DD/YYYY as printed. Report true for is_real_id only when the star marking is present.",
		Fields: []Field{
			req(str("full_name", "Full name")),
			req(str("license_number", "License number")),
			req(str("state", "Issuing state")),
			req(str("date_of_birth", "Date of birth")),
			str("issue_date", "Issue date"),
			req(str("expiration_date", "Expiration date")),
			str("address", "Address"),
			flag("is_real_id", "REAL ID compliant"),
		},
	}
}

func stateIDSchema() *Schema {
	return &Schema{
		Instructions: "Dates are MM/DD/YYYY as printed.",
		Fields: []Field{
			req(str("full_name", "Full name")),
			req(str("id_number", "ID number")),
			req(str("state", "Issuing state")),
			req(str("date_of_birth", "Date of birth")),
			str("issue_date", "Issue date"),
			req(str("expiration_date", "Expiration date")),
			str("address", "Address"),
		},
	}
}

func ssnCardSchema() *Schema {
	return &Schema{
		Fields: []Field{
			req(str("full_name", "Name on card")),
			req(str("ssn", "Social Security number")),
			flag("work_restricted", "Card carries a work restriction legend"),
		},
	}
}
