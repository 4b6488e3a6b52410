package instruments

// Static MOEX tier lists. HHRU belongs to tier 2 only.
const (
	tier1Symbols = `GAZP SBER SBERP LKOH NVTK GMKN ROSN TATN TATNP PLZL POLY MOEX MTSS MGNT SNGS SNGSP
AFKS VTBR PHOR RUAL HYDR ALRS CHMF NLMK TRNFP YNDX OZON`

	tier2Symbols = `AFLT VEON-RX FIVE PIKK QIWI TCSG LSRG MVID RENI MRKY RTKM AGRO FEES CNTL CIAN UPRO
SFIN FLOT SVAV MRKZ MRKC MRKP KMAZ KZOS KZOSP PMSB PMSBP RNFT RUGR SELG SGZH SMLT SPBE TTLK
TRMK UGLD ABRD AKRN APTK BELU BLNG BSPB CBOM DSKY DVEC ETLN FESH FRHC GECO GEMC GLTR HHRU
IRAO KAZT KAZTP KROT LENT LNZL LNZLP MGTSP MRKV MRKS MRKU MSTT MSNG NMTP NKNC NKNCP NKHP
OGKB RKKE ROLO SFTL SIBN VSMO WUSH`

	tier3Symbols = `AQUA ABIO AMEZ BANE BANEP CARM DIAS EUTR ELFV ENPG FIXP GTRK GCHE IRKT KLSB KRKNP
LSNG LSNGP MDMG MTLR MTLRP NSVZ OKEY POSI RASP RTKMP SVCB UNAC UNKL UWGN YAKG DELI`
)

func DefaultMemberships() []Membership {
	return []Membership{
		{Tier: Tier1, Symbols: tier1Symbols},
		{Tier: Tier2, Symbols: tier2Symbols},
		{Tier: Tier3, Symbols: tier3Symbols},
	}
}

// NewDefaultCatalog builds the catalog from the static lists.
func NewDefaultCatalog(policy ThresholdPolicy) (*Catalog, error) {
	return NewCatalog(policy, DefaultMemberships()...)
}
