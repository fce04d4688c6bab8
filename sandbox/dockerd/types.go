package dockerd

type createResponse struct {
	ID       string   `json:"Id"`
	Warnings []string `json:"Warnings"`
}

type inspectImage struct {
	ID       string   `json:"Id"`
	RepoTags []string `json:"RepoTags"`
}

type inspectContainer struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status   string `json:"Status"`
		Running  bool   `json:"Running"`
		ExitCode int    `json:"ExitCode"`
	} `json:"State"`
}

type waitResponse struct {
	StatusCode int `json:"StatusCode"`
	Error      struct {
		Message string `json:"Message"`
	} `json:"Error"`
}
