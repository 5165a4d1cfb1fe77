package services

import (
	"encoding/json"
	"net/http"
)

type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// indonesianBanks is the static destination-bank directory for the
// withdrawal bank-account picker, keyed by national clearing code.
var indonesianBanks = []Bank{
	{Code: "002", Name: "Bank Rakyat Indonesia"},
	{Code: "008", Name: "Bank Mandiri"},
	{Code: "009", Name: "Bank Negara Indonesia"},
	{Code: "011", Name: "Bank Danamon"},
	{Code: "013", Name: "Bank Permata"},
	{Code: "014", Name: "Bank Central Asia"},
	{Code: "016", Name: "Bank Maybank Indonesia"},
	{Code: "019", Name: "Bank Panin"},
	{Code: "022", Name: "Bank CIMB Niaga"},
	{Code: "023", Name: "Bank UOB Indonesia"},
	{Code: "028", Name: "Bank OCBC NISP"},
	{Code: "037", Name: "Bank Artha Graha"},
	{Code: "046", Name: "Bank DBS Indonesia"},
	{Code: "087", Name: "Bank HSBC Indonesia"},
	{Code: "110", Name: "Bank BJB"},
	{Code: "147", Name: "Bank Muamalat"},
	{Code: "153", Name: "Bank Sinarmas"},
	{Code: "200", Name: "Bank Tabungan Negara"},
	{Code: "213", Name: "Bank BTPN"},
	{Code: "426", Name: "Bank Mega"},
	{Code: "441", Name: "Bank Bukopin"},
	{Code: "451", Name: "Bank Syariah Indonesia"},
	{Code: "490", Name: "Bank Neo Commerce"},
	{Code: "501", Name: "Bank Digital BCA"},
	{Code: "503", Name: "Bank Nobu"},
	{Code: "506", Name: "Bank Mega Syariah"},
	{Code: "536", Name: "Bank BCA Syariah"},
	{Code: "542", Name: "Bank Jago"},
	{Code: "547", Name: "Bank BTPN Syariah"},
	{Code: "553", Name: "Bank Mayora"},
}

var bankNamesByCode = func() map[string]string {
	m := make(map[string]string, len(indonesianBanks))
	for _, b := range indonesianBanks {
		m[b.Code] = b.Name
	}
	return m
}()

// BankNameByCode resolves a clearing code against the directory.
func BankNameByCode(code string) (string, bool) {
	name, ok := bankNamesByCode[code]
	return name, ok
}

type BankService struct{}

func NewBankService() *BankService {
	return &BankService{}
}

// GetAllBanks returns the destination-bank directory
// @Summary List supported banks
// @Description Get the directory of banks accepted for withdrawals
// @Tags withdrawals
// @Produce json
// @Success 200 {array} Bank
// @Router /banks [get]
func (bs *BankService) GetAllBanks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(indonesianBanks)
}
