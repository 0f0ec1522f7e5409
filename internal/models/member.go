package models

type Member struct {
	Id          int64  `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	AccessToken string `json:"access_token"`
}

type Pharmacy struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Area    string `json:"area"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}
