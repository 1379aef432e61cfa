package descriptor

import (
	_ "embed"
)

//go:embed assets/db.sql
var dbInitSQL string

var nrfRequirement = Requirement{
	Channel: "nrf",
	Keys:    []string{"host", "port", "api-version"},
	Env: map[string]string{
		"NRF_IPV4_ADDRESS": "${host}",
		"NRF_PORT":         "${port}",
		"NRF_API_VERSION":  "${api-version}",
	},
}

func sbiProvision(channel string) Provision {
	return Provision{
		Channel: channel,
		Data: map[string]string{
			"host":        "${address}",
			"port":        "80",
			"api-version": "v1",
		},
	}
}

var ranPorts = []Port{
	{Name: "s1c", Port: 36412, TargetPort: 36412, Protocol: "UDP"},
	{Name: "s1u", Port: 2152, TargetPort: 2152, Protocol: "UDP"},
	{Name: "x2c", Port: 36422, TargetPort: 36422, Protocol: "UDP"},
}

func builtins() []*Descriptor {
	return []*Descriptor{
		{
			Name:      "nrf",
			Container: "nrf",
			Service:   "oai_nrf",
			Summary:   "oai_nrf",
			Command:   "/bin/bash /openair-nrf/bin/entrypoint.sh /openair-nrf/bin/oai_nrf -c /openair-nrf/etc/nrf.conf -o",
			Environment: map[string]string{
				"DEBIAN_FRONTEND":                  "noninteractive",
				"TZ":                               "Europe/Paris",
				"INSTANCE":                         "0",
				"PID_DIRECTORY":                    "/var/run",
				"NRF_INTERFACE_NAME_FOR_SBI":       "eth0",
				"NRF_INTERFACE_PORT_FOR_SBI":       "80",
				"NRF_INTERFACE_HTTP2_PORT_FOR_SBI": "9090",
				"NRF_API_VERSION":                  "v1",
			},
			Provides:         []Provision{sbiProvision("nrf")},
			Privileged:       true,
			Tcpdump:          true,
			ActivationTokens: []string{"Initializing NRF", "HTTP1 server started"},
		},
		{
			Name:      "db",
			Container: "db",
			Service:   "oai_db",
			Summary:   "oai_db",
			Command:   "docker-entrypoint.sh mysqld",
			Environment: map[string]string{
				"MYSQL_ROOT_PASSWORD": "root",
				"MYSQL_DATABASE":      "oai_db",
				"GOSU_VERSION":        "1.13",
				"MARIADB_MAJOR":       "10.3",
				"MARIADB_VERSION":     "1:10.3.31+maria~focal",
			},
			Provides: []Provision{{
				Channel: "db",
				Data: map[string]string{
					"host":     "${address}",
					"port":     "3306",
					"user":     "root",
					"password": "root",
					"database": "oai_db",
				},
			}},
			ActivationTokens: []string{"ready for connections"},
			InitFiles: []InitFile{{
				Path:    "/docker-entrypoint-initdb.d/db.sql",
				Content: dbInitSQL,
			}},
		},
		{
			Name:      "amf",
			Container: "amf",
			Service:   "oai_amf",
			Summary:   "oai_amf",
			Command:   "/bin/bash /openair-amf/bin/entrypoint.sh /openair-amf/bin/oai_amf -c /openair-amf/etc/amf.conf -o",
			Environment: map[string]string{
				"DEBIAN_FRONTEND":             "noninteractive",
				"TZ":                          "Europe/Paris",
				"INSTANCE":                    "0",
				"PID_DIRECTORY":               "/var/run",
				"MCC":                         "208",
				"MNC":                         "95",
				"REGION_ID":                   "128",
				"AMF_SET_ID":                  "1",
				"SERVED_GUAMI_MCC_0":          "208",
				"SERVED_GUAMI_MNC_0":          "95",
				"SERVED_GUAMI_REGION_ID_0":    "128",
				"SERVED_GUAMI_AMF_SET_ID_0":   "1",
				"SERVED_GUAMI_MCC_1":          "460",
				"SERVED_GUAMI_MNC_1":          "11",
				"SERVED_GUAMI_REGION_ID_1":    "10",
				"SERVED_GUAMI_AMF_SET_ID_1":   "1",
				"PLMN_SUPPORT_MCC":            "208",
				"PLMN_SUPPORT_MNC":            "95",
				"PLMN_SUPPORT_TAC":            "0xa000",
				"SST_0":                       "222",
				"SD_0":                        "123",
				"SST_1":                       "111",
				"SD_1":                        "124",
				"AMF_INTERFACE_NAME_FOR_NGAP": "eth0",
				"AMF_INTERFACE_NAME_FOR_N11":  "eth0",
				"SMF_INSTANCE_ID_0":           "1",
				"SMF_IPV4_ADDR_0":             "127.0.0.1",
				"SMF_HTTP_VERSION_0":          "v1",
				"SMF_FQDN_0":                  "localhost",
				"SMF_INSTANCE_ID_1":           "2",
				"SMF_IPV4_ADDR_1":             "127.0.0.1",
				"SMF_HTTP_VERSION_1":          "v1",
				"SMF_FQDN_1":                  "localhost",
				"NRF_FQDN":                    "oai-nrf-svc",
				"AUSF_IPV4_ADDRESS":           "127.0.0.1",
				"AUSF_PORT":                   "80",
				"AUSF_API_VERSION":            "v1",
				"NF_REGISTRATION":             "yes",
				"SMF_SELECTION":               "yes",
				"USE_FQDN_DNS":                "no",
				"OPERATOR_KEY":                "63bfa50ee6523365ff14c1f45f88737d",
			},
			Requires: []Requirement{
				nrfRequirement,
				{
					Channel: "db",
					Keys:    []string{"host", "port", "user", "password", "database"},
					Env: map[string]string{
						"MYSQL_SERVER": "${host}:${port}",
						"MYSQL_USER":   "${user}",
						"MYSQL_PASS":   "${password}",
						"MYSQL_DB":     "${database}",
					},
				},
			},
			Provides:         []Provision{sbiProvision("amf")},
			Privileged:       true,
			Tcpdump:          true,
			ActivationTokens: []string{"Initializing AMF", "amf_n2 started"},
		},
		{
			Name:      "smf",
			Container: "smf",
			Service:   "oai_smf",
			Summary:   "oai_smf",
			Command:   "/bin/bash /openair-smf/bin/entrypoint.sh /openair-smf/bin/oai_smf -c /openair-smf/etc/smf.conf -o",
			Environment: map[string]string{
				"DEBIAN_FRONTEND":                  "noninteractive",
				"TZ":                               "Europe/Paris",
				"INSTANCE":                         "0",
				"PID_DIRECTORY":                    "/var/run",
				"SMF_INTERFACE_NAME_FOR_N4":        "eth0",
				"SMF_INTERFACE_NAME_FOR_SBI":       "eth0",
				"SMF_INTERFACE_PORT_FOR_SBI":       "80",
				"SMF_INTERFACE_HTTP2_PORT_FOR_SBI": "9090",
				"SMF_API_VERSION":                  "v1",
				"DEFAULT_DNS_IPV4_ADDRESS":         "192.168.0.1",
				"DEFAULT_DNS_SEC_IPV4_ADDRESS":     "192.168.0.1",
				"REGISTER_NRF":                     "yes",
				"DISCOVER_UPF":                     "no",
				"USE_FQDN_DNS":                     "no",
				"AMF_FQDN":                         "oai-amf-svc",
				"UDM_IPV4_ADDRESS":                 "127.0.0.1",
				"UDM_PORT":                         "80",
				"UDM_API_VERSION":                  "v1",
				"UDM_FQDN":                         "localhost",
				"NRF_FQDN":                         "oai-nrf-svc",
				"UPF_IPV4_ADDRESS":                 "127.0.0.1",
				"UPF_FQDN_0":                       "oai-spgwu-svc",
			},
			Requires: []Requirement{
				nrfRequirement,
				{
					Channel: "amf",
					Keys:    []string{"host", "port", "api-version"},
					Env: map[string]string{
						"AMF_IPV4_ADDRESS": "${host}",
						"AMF_PORT":         "${port}",
						"AMF_API_VERSION":  "${api-version}",
					},
				},
			},
			Privileged:       true,
			Tcpdump:          true,
			ActivationTokens: []string{"Initializing SMF", "Sending NF registration request"},
		},
		{
			Name:      "spgwu-tiny",
			Container: "spgwu-tiny",
			Service:   "oai_spgwu_tiny",
			Summary:   "oai_spgwu_tiny",
			Command:   "/bin/bash /openair-spgwu-tiny/bin/entrypoint.sh /openair-spgwu-tiny/bin/oai_spgwu -c /openair-spgwu-tiny/etc/spgw_u.conf -o",
			Environment: map[string]string{
				"DEBIAN_FRONTEND":                      "noninteractive",
				"TZ":                                   "Europe/Paris",
				"GW_ID":                                "1",
				"MNC03":                                "208",
				"MCC":                                  "95",
				"REALM":                                "3gpp.org",
				"PID_DIRECTORY":                        "/var/run",
				"SGW_INTERFACE_NAME_FOR_S1U_S12_S4_UP": "eth0",
				"THREAD_S1U_PRIO":                      "98",
				"S1U_THREADS":                          "1",
				"SGW_INTERFACE_NAME_FOR_SX":            "eth0",
				"THREAD_SX_PRIO":                       "98",
				"SX_THREADS":                           "1",
				"PGW_INTERFACE_NAME_FOR_SGI":           "eth0",
				"THREAD_SGI_PRIO":                      "98",
				"SGI_THREADS":                          "1",
				"NETWORK_UE_NAT_OPTION":                "yes",
				"GTP_EXTENSION_HEADER_PRESENT":         "yes",
				"NETWORK_UE_IP":                        "12.1.1.0/24",
				"SPGWC0_IP_ADDRESS":                    "127.0.0.1",
				"BYPASS_UL_PFCP_RULES":                 "no",
				"ENABLE_5G_FEATURES":                   "yes",
				"REGISTER_NRF":                         "yes",
				"USE_FQDN_NRF":                         "no",
				"NRF_FQDN":                             "no",
				"NSSAI_SST_0":                          "222",
				"NSSAI_SD_0":                           "123",
				"DNN_0":                                "default",
				"UPF_FQDN_5G":                          "oai-spgwu-tiny-svc",
			},
			Requires: []Requirement{nrfRequirement},
			Provides: []Provision{{
				Channel: "spgwu",
				Data:    map[string]string{"ready": "True"},
			}},
			Privileged:       true,
			Tcpdump:          true,
			ActivationTokens: []string{"Initializing SPGWU", "Sending NF registration request"},
		},
		{
			Name:      "gnb",
			Container: "gnb",
			Service:   "oai_gnb",
			Summary:   "oai_gnb",
			Command:   "/opt/oai-gnb/bin/entrypoint.sh /opt/oai-gnb/bin/nr-softmodem.Rel15 -O /opt/oai-gnb/etc/gnb.conf",
			Environment: map[string]string{
				"TZ":                     "Europe/Paris",
				"RFSIMULATOR":            "server",
				"USE_SA_TDD_MONO":        "yes",
				"GNB_NAME":               "gnb-rfsim",
				"MCC":                    "208",
				"MNC":                    "95",
				"MNC_LENGTH":             "2",
				"TAC":                    "1",
				"NSSAI_SST":              "1",
				"NSSAI_SD0":              "1",
				"NSSAI_SD1":              "112233",
				"GNB_NGA_IF_NAME":        "eth0",
				"GNB_NGA_IP_ADDRESS":     "${address}",
				"GNB_NGU_IF_NAME":        "eth0",
				"GNB_NGU_IP_ADDRESS":     "${address}",
				"USE_ADDITIONAL_OPTIONS": "--sa -E --rfsim",
			},
			Requires: []Requirement{
				{
					Channel: "amf",
					Keys:    []string{"host"},
					Env:     map[string]string{"AMF_IP_ADDRESS": "${host}"},
				},
				{
					Channel: "spgwu",
					Keys:    []string{"ready"},
					Equals:  map[string]string{"ready": "True"},
				},
			},
			Provides: []Provision{{
				Channel: "gnb",
				Data:    map[string]string{"host": "${address}"},
			}},
			Ports:            ranPorts,
			Privileged:       true,
			Tcpdump:          true,
			ActivationTokens: []string{"ALL RUs ready"},
		},
		{
			Name:      "nr-ue",
			Container: "nr-ue",
			Service:   "oai_nr_ue",
			Summary:   "oai_nr_ue",
			Command:   "/opt/oai-nr-ue/bin/entrypoint.sh /opt/oai-nr-ue/bin/nr-uesoftmodem.Rel15 -O /opt/oai-nr-ue/etc/nr-ue-sim.conf",
			Environment: map[string]string{
				"TZ":                     "Europe/Paris",
				"FULL_IMSI":              "208950000000031",
				"FULL_KEY":               "0C0A34601D4F07677303652C0462535B",
				"OPC":                    "63bfa50ee6523365ff14c1f45f88737d",
				"DNN":                    "oai",
				"NSSAI_SST":              "1",
				"NSSAI_SD":               "1",
				"USE_ADDITIONAL_OPTIONS": "-E --sa --rfsim -r 106 --numerology 1 -C 3619200000 --nokrnmod",
			},
			Requires: []Requirement{{
				Channel: "gnb",
				Keys:    []string{"host"},
				Env:     map[string]string{"RFSIMULATOR": "${host}"},
			}},
			Ports:            ranPorts,
			Privileged:       true,
			Tcpdump:          true,
			ActivationTokens: []string{"RRCSetup"},
		},
	}
}

// Builtin returns fresh copies of the built-in descriptors in topological
// declaration order.
func Builtin() []*Descriptor {
	ds := builtins()
	for i, d := range ds {
		ds[i] = d.Clone()
	}
	return ds
}
