// Command vlookup matches the rows of one spreadsheet column against another.
//
// Every item of list A is first paired with an item of list B whose text is
// equal after trimming and case folding. Items left over on both sides are
// then embedded and paired greedily by cosine similarity, best score first,
// as long as the score reaches the configured threshold. Each B item is used
// at most once.
//
// Usage:
//
//	vlookup match -a customers.xlsx -b master.xlsx --column-a Name --column-b 会社名
//	vlookup columns customers.xlsx
//	vlookup config init
//	vlookup history list
//	vlookup model locate
package main
