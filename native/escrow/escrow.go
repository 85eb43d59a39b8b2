// Package escrow implements the conditional sale escrow: a seller lists a deed
// held by the asset registry, the buyer posts earnest money, a lender may add
// financing, an inspector attests, and once buyer, seller and lender approve
// the seller finalizes the sale. Funds are accounted per listing so no
// refund or payout can reach value that was earmarked for another listing.
package escrow

// ModuleName is the pause-guard and metrics key for the escrow module.
const ModuleName = "escrow"
