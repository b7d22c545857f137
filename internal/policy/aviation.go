package policy

// Aviation returns the registry for the NTSB aviation accident dataset
// (avall.mdb and its upDDMMM incremental archives).
//
// events is the primary table; every entity table below it is owned by
// an ev_id and replaced per-event when a revision arrives. Lookup
// tables carry their natural codes, except ct_accident_cause whose
// cause_factor codes are not stable across publications.
func Aviation() *Registry {
	tables := []Table{
		{
			Name: "events",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "ntsb_no", Kind: Text},
				{Name: "ev_type", Kind: Text},
				{Name: "ev_date", Kind: Text},
				{Name: "ev_time", Kind: Integer},
				{Name: "ev_city", Kind: Text},
				{Name: "ev_state", Kind: Text},
				{Name: "ev_country", Kind: Text},
				{Name: "wx_cond_basic", Kind: Text},
				{Name: "ev_highest_injury", Kind: Text},
				{Name: "inj_tot_f", Kind: Integer},
				{Name: "inj_tot_s", Kind: Integer},
				{Name: "inj_tot_m", Kind: Integer},
				{Name: "inj_tot_n", Kind: Integer},
				{Name: "inj_tot_t", Kind: Integer},
			},
			Keys:     []string{"ev_id"},
			Strategy: KeyedUpsert,
		},
		{
			Name: "aircraft",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "aircraft_key", Kind: Integer},
				{Name: "regis_no", Kind: Text},
				{Name: "acft_make", Kind: Text},
				{Name: "acft_model", Kind: Text},
				{Name: "acft_series", Kind: Text},
				{Name: "acft_serial_no", Kind: Text},
				{Name: "damage", Kind: Text},
				{Name: "far_part", Kind: Text},
				{Name: "num_eng", Kind: Integer},
			},
			Keys:     []string{"ev_id", "aircraft_key"},
			Strategy: ScopedReplace,
		},
		{
			Name: "engines",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "aircraft_key", Kind: Integer},
				{Name: "eng_no", Kind: Integer},
				{Name: "eng_type", Kind: Text},
				{Name: "eng_mfgr", Kind: Text},
				{Name: "eng_model", Kind: Text},
				{Name: "power_units", Kind: Integer},
			},
			Keys:     []string{"ev_id", "aircraft_key", "eng_no"},
			Strategy: ScopedReplace,
		},
		{
			Name: "narratives",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "narr_accp", Kind: Text},
				{Name: "narr_accf", Kind: Text},
				{Name: "narr_cause", Kind: Text},
			},
			Keys:     []string{"ev_id"},
			Strategy: ScopedReplace,
		},
		{
			Name: "seq_of_events",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "aircraft_key", Kind: Integer},
				{Name: "occurrence_no", Kind: Integer},
				{Name: "occurrence_code", Kind: Text},
				{Name: "phase_of_flt_code", Kind: Text},
				{Name: "seq_event_no", Kind: Integer},
			},
			Keys:     []string{"ev_id", "aircraft_key", "occurrence_no"},
			Strategy: ScopedReplace,
		},
		{
			Name: "findings",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "aircraft_key", Kind: Integer},
				{Name: "finding_no", Kind: Integer},
				{Name: "finding_code", Kind: Text},
				{Name: "finding_description", Kind: Text},
				{Name: "cause_factor", Kind: Text},
			},
			Keys:     []string{"ev_id", "aircraft_key", "finding_no"},
			Strategy: ScopedReplace,
		},
		{
			Name: "injury",
			Columns: []Column{
				{Name: "ev_id", Kind: Text},
				{Name: "aircraft_key", Kind: Integer},
				{Name: "injury_desc", Kind: Text},
				{Name: "injury_level", Kind: Text},
				{Name: "inj_person_count", Kind: Integer},
			},
			Keys:     []string{"ev_id", "aircraft_key", "injury_desc"},
			Strategy: ScopedReplace,
		},

		// Reference data. Revised rarely; keyed on the vendor's codes.
		{
			Name: "ct_acft_make",
			Columns: []Column{
				{Name: "make_name", Kind: Text},
				{Name: "make_description", Kind: Text},
			},
			Keys:     []string{"make_name"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_acft_model",
			Columns: []Column{
				{Name: "make_name", Kind: Text},
				{Name: "model_name", Kind: Text},
				{Name: "model_description", Kind: Text},
			},
			Keys:     []string{"make_name", "model_name"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_inj_level",
			Columns: []Column{
				{Name: "inj_level", Kind: Text},
				{Name: "inj_level_description", Kind: Text},
			},
			Keys:     []string{"inj_level"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_weather_cond",
			Columns: []Column{
				{Name: "weather_cond_code", Kind: Text},
				{Name: "weather_cond_description", Kind: Text},
			},
			Keys:     []string{"weather_cond_code"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_occurrences",
			Columns: []Column{
				{Name: "occurrence_code", Kind: Text},
				{Name: "occurrence_description", Kind: Text},
			},
			Keys:     []string{"occurrence_code"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_phase_of_flt",
			Columns: []Column{
				{Name: "phase_flt_code", Kind: Text},
				{Name: "phase_flt_description", Kind: Text},
			},
			Keys:     []string{"phase_flt_code"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_seq_of_events",
			Columns: []Column{
				{Name: "seq_event_code", Kind: Text},
				{Name: "seq_event_description", Kind: Text},
			},
			Keys:     []string{"seq_event_code"},
			Strategy: KeyedUpsert,
			Lookup:   true,
		},
		{
			Name: "ct_accident_cause",
			Columns: []Column{
				{Name: "cause_factor", Kind: Text},
				{Name: "cause_description", Kind: Text},
			},
			Strategy: FullReplace,
			Lookup:   true,
		},
	}

	r, err := NewRegistry("events", "ev_id", tables)
	if err != nil {
		// The table list above is compiled in; a bad entry is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return r
}
