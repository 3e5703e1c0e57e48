package metadata

// KnownSubnetMappings maps subnet contract ids to the mainnet contract they
// mirror. The upstream aggregator is unreliable for subnet tokens: records
// arrive with a missing or malformed base, or are omitted entirely. This
// table is the out-of-band knowledge used to repair and synthesize them.
//
// Update this table when a new subnet contract is deployed; reconciliation
// code never needs to change for that.
var KnownSubnetMappings = map[string]string{
	"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token-subnet-v1": "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.charisma-token",
	"SP3NE50GEXFG9SZGTT51P40X2CKYSZ5CC4ZTZ7A2G.welsh-token-subnet-v1":    "SP3NE50GEXFG9SZGTT51P40X2CKYSZ5CC4ZTZ7A2G.welshcorgicoin-token",
	"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.leo-token-subnet-v1":      "SP1AY6K3PQV5MRT6R4S671NWW2FRVPKM0BR162CT6.leo-token",
	"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.kangaroo-subnet-v1":       "SP2C1WREHGM75C7TGFAEJPFKTFTEGZKF6DFT6E2GE.kangaroo",
	"SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.dme000-subnet-v1":         "SP2ZNGJ85ENDY6QTHCQE1C7S56AMCW9D0GEFKS0F5.dme000-governance-token",
}

// BaseFor returns the known mainnet contract for a subnet contract id.
func BaseFor(subnetContractID string) (string, bool) {
	base, ok := KnownSubnetMappings[subnetContractID]
	return base, ok
}
